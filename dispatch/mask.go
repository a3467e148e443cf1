package dispatch

import (
	"fmt"
	"strings"

	"github.com/gogpu/shadertoggle/group"
)

// ActionKind is the category of a queued group action.
type ActionKind uint8

// Action kinds. Each kind owns one lane per shader stage.
const (
	ActionEffect ActionKind = iota
	ActionBinding
	ActionConstant
	ActionPreview

	ActionKindCount = 4
)

func (k ActionKind) String() string {
	switch k {
	case ActionEffect:
		return "effect"
	case ActionBinding:
		return "binding"
	case ActionConstant:
		return "constant"
	case ActionPreview:
		return "preview"
	}
	return "unknown"
}

// Lanes is a set of (ActionKind, Stage) lanes for one call site.
type Lanes uint16

// LaneCount is the number of lanes per call site.
const LaneCount = ActionKindCount * group.StageCount

// AllLanes has every lane set.
const AllLanes Lanes = 1<<LaneCount - 1

// Lane returns the single lane for kind on stage.
func Lane(kind ActionKind, stage group.Stage) Lanes {
	return 1 << (uint(kind)*group.StageCount + uint(stage.Clamp()))
}

// KindLanes returns the lanes of kind on every stage.
func KindLanes(kind ActionKind) Lanes {
	return 0b111 << (uint(kind) * group.StageCount)
}

// StageLanes returns the lanes of every kind on stage.
func StageLanes(stage group.Stage) Lanes {
	var l Lanes
	for k := ActionKind(0); k < ActionKindCount; k++ {
		l |= Lane(k, stage)
	}
	return l
}

// Has reports whether any lane of o is set in l.
func (l Lanes) Has(o Lanes) bool { return l&o != 0 }

func (l Lanes) String() string {
	if l == 0 {
		return "none"
	}
	var parts []string
	for k := ActionKind(0); k < ActionKindCount; k++ {
		for s := group.Stage(0); s < group.StageCount; s++ {
			if l.Has(Lane(k, s)) {
				parts = append(parts, fmt.Sprintf("%s/%s", k, s))
			}
		}
	}
	return strings.Join(parts, "|")
}

// Mask holds the pending lanes of a command list, one Lanes per call site.
type Mask [group.CallSiteCount]Lanes

// Raise sets lanes at site.
func (m *Mask) Raise(site group.CallSite, lanes Lanes) {
	if site < group.CallSiteCount {
		m[site] |= lanes
	}
}

// Clear drops lanes at site and returns the ones that were set.
func (m *Mask) Clear(site group.CallSite, lanes Lanes) Lanes {
	if site >= group.CallSiteCount {
		return 0
	}
	was := m[site] & lanes
	m[site] &^= lanes
	return was
}

// Has reports whether any of lanes is pending at site.
func (m *Mask) Has(site group.CallSite, lanes Lanes) bool {
	return site < group.CallSiteCount && m[site]&lanes != 0
}

// Any reports whether anything is pending at any site.
func (m *Mask) Any() bool {
	return m[0]|m[1]|m[2] != 0
}

// Reset clears every site.
func (m *Mask) Reset() {
	*m = Mask{}
}
