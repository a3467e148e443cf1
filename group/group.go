// Package group defines toggle groups and the store that indexes them by
// shader hash.
//
// A toggle group is a user-defined set of shader hashes plus the behaviour
// applied when one of them is bound: hiding draws, rendering effects into
// the bound render target, exposing a texture binding or extracting
// constants. Groups are identified by a process-unique ID that never changes
// for the lifetime of the group, so per-group caches elsewhere in the module
// are keyed by ID rather than by pointer.
package group

import (
	"slices"
	"sync/atomic"
)

// ID identifies a group for the lifetime of the process.
type ID int64

var lastID atomic.Int64

// NextID returns a new group ID. IDs are positive and strictly increasing.
func NextID() ID {
	return ID(lastID.Add(1))
}

// Stage is the shader stage a group reads from.
type Stage uint32

// Shader stages understood by groups.
const (
	StagePixel Stage = iota
	StageVertex
	StageCompute

	StageCount = 3
)

// Clamp returns s limited to the valid stage range.
func (s Stage) Clamp() Stage {
	return min(s, StageCompute)
}

func (s Stage) String() string {
	switch s {
	case StagePixel:
		return "pixel"
	case StageVertex:
		return "vertex"
	case StageCompute:
		return "compute"
	}
	return "unknown"
}

// CallSite is the point in the render loop where a queued action fires.
type CallSite uint32

// Call sites. Draw is the zero value and the fallback for every action.
const (
	CallDraw CallSite = iota
	CallBindPipeline
	CallBindRenderTarget

	CallSiteCount = 3
)

func (c CallSite) String() string {
	switch c {
	case CallDraw:
		return "draw"
	case CallBindPipeline:
		return "bind_pipeline"
	case CallBindRenderTarget:
		return "bind_render_target"
	}
	return "unknown"
}

// MatchMode selects how a render target is compared against the swapchain
// before use.
type MatchMode uint32

// Match modes. Every mode below MatchNone performs a size check.
const (
	MatchResolution MatchMode = iota
	MatchAspectRatio
	MatchExtendedAspectRatio
	MatchNone
)

// Cycle is a pending request to move a descriptor index.
type Cycle uint32

// Cycle requests.
const (
	CycleNone Cycle = iota
	CycleUp
	CycleDown
)

// CycleTarget names the index a cycle request applies to.
type CycleTarget uint8

// Cycle targets.
const (
	CycleConstants CycleTarget = iota
	CycleShaderResource
	CycleRenderTarget

	cycleTargetCount
)

// VKCapital is the default toggle key (caps lock).
const VKCapital = 0x14

// HashSet is a set of shader hashes.
type HashSet map[uint32]struct{}

// NewHashSet creates a set holding hashes.
func NewHashSet(hashes ...uint32) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Has reports whether h is in the set.
func (s HashSet) Has(h uint32) bool {
	_, ok := s[h]
	return ok
}

// Sorted returns the hashes in ascending order.
func (s HashSet) Sorted() []uint32 {
	out := make([]uint32, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// VarMapping maps a constant buffer offset to an effect variable.
type VarMapping struct {
	Offset      uint32
	UsePrevious bool
}

// Settings is the persisted configuration of a group.
type Settings struct {
	Name      string
	ToggleKey uint32
	Active    bool

	Hashes [StageCount]HashSet

	Invocation        CallSite
	RenderTargetIndex uint32
	Match             MatchMode
	Requeue           bool

	Techniques          []string
	AllowAllTechniques  bool
	TechniqueExceptions bool

	ProvideTextureBinding bool
	TextureBindingName    string
	ClearBindings         bool
	CopyTextureBinding    bool
	FlipBufferBinding     bool

	ExtractConstants   bool
	ConstantSlot       uint32
	ConstantDescriptor uint32
	ConstantPushMode   bool
	ConstantStage      Stage

	ExtractSRVs              bool
	SRVSlot                  uint32
	SRVDescriptor            uint32
	SRVStage                 Stage
	BindingRenderTargetIndex uint32
	BindingInvocation        CallSite
	BindingMatch             MatchMode

	ClearPreviewAlpha bool
	Tonemap           bool
	PreserveAlpha     bool
	FlipBuffer        bool

	Vars map[string]VarMapping
}

// DefaultSettings returns the settings of a freshly created group.
func DefaultSettings(name string) Settings {
	if name == "" {
		name = "Default"
	}
	s := Settings{
		Name:               name,
		ToggleKey:          VKCapital,
		AllowAllTechniques: true,
		ConstantSlot:       2,
		SRVSlot:            1,
		ClearBindings:      true,
		ClearPreviewAlpha:  true,
		Vars:               make(map[string]VarMapping),
	}
	for i := range s.Hashes {
		s.Hashes[i] = make(HashSet)
	}
	return s
}

// Group is a toggle group. Settings are written by the thread that owns the
// group's store; the active flag, cycle requests and descriptor indices may
// be touched from any goroutine.
//
// The ConstantDescriptor and SRVDescriptor settings only seed the group.
// The live indices are read with DescriptorIndex.
type Group struct {
	Settings

	id      ID
	active  atomic.Bool
	editing atomic.Bool
	cycles  [cycleTargetCount]atomic.Uint32
	indices [cycleTargetCount]atomic.Uint32
}

// New creates a group with default settings and a fresh ID.
func New(name string) *Group {
	return FromSettings(DefaultSettings(name))
}

// FromSettings creates a group with a fresh ID from s.
func FromSettings(s Settings) *Group {
	for i := range s.Hashes {
		if s.Hashes[i] == nil {
			s.Hashes[i] = make(HashSet)
		}
	}
	if s.Vars == nil {
		s.Vars = make(map[string]VarMapping)
	}
	g := &Group{Settings: s, id: NextID()}
	g.active.Store(s.Active)
	g.indices[CycleConstants].Store(s.ConstantDescriptor)
	g.indices[CycleShaderResource].Store(s.SRVDescriptor)
	return g
}

// ID returns the group's identifier.
func (g *Group) ID() ID { return g.id }

// IsActive reports whether the group is toggled on.
func (g *Group) IsActive() bool { return g.active.Load() }

// SetActive toggles the group on or off.
func (g *Group) SetActive(active bool) { g.active.Store(active) }

// ToggleActive flips the active flag and returns the new value.
func (g *Group) ToggleActive() bool {
	for {
		old := g.active.Load()
		if g.active.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// IsEditing reports whether the group is being edited.
func (g *Group) IsEditing() bool { return g.editing.Load() }

// Snapshot returns a deep copy of the settings with the current active flag.
func (g *Group) Snapshot() Settings {
	s := g.Settings
	s.Active = g.IsActive()
	s.ConstantDescriptor = g.DescriptorIndex(CycleConstants)
	s.SRVDescriptor = g.DescriptorIndex(CycleShaderResource)
	for i := range s.Hashes {
		s.Hashes[i] = make(HashSet, len(g.Hashes[i]))
		for h := range g.Hashes[i] {
			s.Hashes[i][h] = struct{}{}
		}
	}
	s.Techniques = slices.Clone(g.Techniques)
	s.Vars = make(map[string]VarMapping, len(g.Vars))
	for k, v := range g.Vars {
		s.Vars[k] = v
	}
	return s
}

// IsBlocked reports whether h is one of the group's hashes for stage and
// the group is active.
func (g *Group) IsBlocked(stage Stage, h uint32) bool {
	return stage < StageCount && g.IsActive() && g.Hashes[stage].Has(h)
}

// IsEmpty reports whether the group has no pixel or vertex hashes.
func (g *Group) IsEmpty() bool {
	return len(g.Hashes[StagePixel]) == 0 && len(g.Hashes[StageVertex]) == 0
}

// StoreHashes replaces the hash sets of every stage.
func (g *Group) StoreHashes(hashes [StageCount]HashSet) {
	for i := range g.Hashes {
		g.Hashes[i] = make(HashSet, len(hashes[i]))
		for h := range hashes[i] {
			g.Hashes[i][h] = struct{}{}
		}
	}
}

// SetTechniques replaces the preferred techniques, dropping duplicates and
// empty names.
func (s *Settings) SetTechniques(names []string) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	s.Techniques = out
}

// HasTechnique reports whether name is a preferred technique.
func (g *Group) HasTechnique(name string) bool {
	return slices.Contains(g.Techniques, name)
}

// SetVarMapping maps offset to the effect variable name.
func (g *Group) SetVarMapping(name string, offset uint32, usePrevious bool) {
	g.Vars[name] = VarMapping{Offset: offset, UsePrevious: usePrevious}
}

// RemoveVarMapping drops the mapping for name.
func (g *Group) RemoveVarMapping(name string) {
	delete(g.Vars, name)
}

// RequestCycle records a cycle request for target, replacing any pending
// one.
func (g *Group) RequestCycle(target CycleTarget, c Cycle) {
	if target < cycleTargetCount {
		g.cycles[target].Store(uint32(c))
	}
}

// ConsumeCycle returns the pending cycle request for target and clears it.
func (g *Group) ConsumeCycle(target CycleTarget) Cycle {
	if target >= cycleTargetCount {
		return CycleNone
	}
	return Cycle(g.cycles[target].Swap(uint32(CycleNone)))
}

// DescriptorIndex returns the descriptor index target currently points at.
// Only the constant and shader resource targets are tracked.
func (g *Group) DescriptorIndex(target CycleTarget) uint32 {
	if target >= cycleTargetCount {
		return 0
	}
	return g.indices[target].Load()
}

// SetDescriptorIndex moves the descriptor index of target to i.
func (g *Group) SetDescriptorIndex(target CycleTarget, i uint32) {
	if target < cycleTargetCount {
		g.indices[target].Store(i)
	}
}

// AlphaEnabled reports whether the group needs an alpha preservation
// resource.
func (g *Group) AlphaEnabled() bool { return g.PreserveAlpha }

// BindingEnabled reports whether the group needs its own binding copy.
func (g *Group) BindingEnabled() bool {
	return g.ProvideTextureBinding && g.CopyTextureBinding
}

// ConstantsEnabled reports whether the group needs a constant readback
// resource.
func (g *Group) ConstantsEnabled() bool { return g.ExtractConstants }
