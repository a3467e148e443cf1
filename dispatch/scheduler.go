// Package dispatch decides when queued group actions fire.
//
// Binding a shader queues the actions of every active group that blocks it
// and raises their lanes in the command list's Mask, once for the group's
// invocation site and once for the draw site. Draw is always raised because
// it is the only point where render targets are resolved. The consumer of a
// lane clears it before processing, so each raise is consumed exactly once,
// and dispatched entries are erased from their queue so that further draws
// against the same state do nothing.
package dispatch

import (
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
)

// Source answers the device-wide questions the scheduler asks about a
// group.
type Source interface {
	// ConstantsUpdated reports whether g's constants were already extracted
	// this frame.
	ConstantsUpdated(id group.ID) bool
	// BindingsUpdated reports whether g's binding was already updated this
	// frame.
	BindingsUpdated(id group.ID) bool
	// PendingTechniques appends the techniques g renders that have not been
	// rendered this frame.
	PendingTechniques(g *group.Group, dst []api.Technique) []api.Technique
	// PreviewPending reports whether g is under edit and its preview has not
	// been matched this frame.
	PreviewPending(g *group.Group) bool
	// PreviewUnresolved is PreviewPending with no preview target found yet.
	PreviewUnresolved(g *group.Group) bool
}

// List is the dispatch state of one command list.
type List struct {
	Mask   Mask
	Stages [group.StageCount]StageQueue

	// Preview is the group under edit and the site its preview fires at.
	Preview RenderData

	techs []api.Technique
}

// NewList creates an empty list.
func NewList() *List {
	l := &List{}
	for i := range l.Stages {
		l.Stages[i] = newStageQueue()
	}
	return l
}

// Reset drops all pending lanes and queued actions.
func (l *List) Reset() {
	l.Mask.Reset()
	for i := range l.Stages {
		l.Stages[i].reset()
	}
	l.Preview = RenderData{}
}

// BindShader records hash as the active shader of stage and looks up the
// groups blocking it. It returns the stage's lanes when the hash changed.
func (l *List) BindShader(stage group.Stage, hash uint32, groups *group.Store) Lanes {
	q := &l.Stages[stage.Clamp()]
	var changed Lanes
	if q.Hash != hash {
		changed = StageLanes(stage)
		clear(q.Constants)
	}
	clear(q.Blocked)
	q.Blocked = groups.Blocking(q.Blocked[:0], stage, hash)
	q.Hash = hash
	return changed
}

func raiseAt(lanes Lanes, site group.CallSite) Mask {
	var m Mask
	m.Raise(site, lanes)
	m.Raise(group.CallDraw, lanes)
	return m
}

func (m *Mask) merge(o Mask) {
	for i := range m {
		m[i] |= o[i]
	}
}

// CheckCall queues the actions of every active group blocking the bound
// shaders and raises their lanes.
func (l *List) CheckCall(src Source) {
	for s := range l.Stages {
		l.checkStage(group.Stage(s), src)
	}
}

func (l *List) checkStage(stage group.Stage, src Source) {
	q := &l.Stages[stage]
	effect := Lane(ActionEffect, stage)
	binding := Lane(ActionBinding, stage)
	constant := Lane(ActionConstant, stage)
	preview := Lane(ActionPreview, stage)

	var m Mask
	for _, g := range q.Blocked {
		if !g.IsActive() {
			continue
		}
		id := g.ID()

		if g.ExtractConstants && !src.ConstantsUpdated(id) {
			if _, ok := q.Constants[id]; !ok {
				q.Constants[id] = g
				m.Raise(group.CallDraw, constant)
			}
		}

		if src.PreviewPending(g) {
			m.merge(raiseAt(preview, g.Invocation))
			l.Preview = RenderData{Group: g, Invocation: g.Invocation}
		}

		if g.ProvideTextureBinding && !src.BindingsUpdated(id) {
			if _, ok := q.Bindings[id]; !ok {
				if !g.CopyTextureBinding || g.ExtractSRVs {
					q.Bindings[id] = RenderData{Group: g, Invocation: group.CallDraw}
					m.Raise(group.CallDraw, binding)
				} else {
					q.Bindings[id] = RenderData{Group: g, Invocation: g.BindingInvocation}
					m.merge(raiseAt(binding, g.BindingInvocation))
				}
			}
		}

		l.techs = src.PendingTechniques(g, l.techs[:0])
		for _, t := range l.techs {
			if _, ok := q.Effects[t]; ok {
				continue
			}
			q.Effects[t] = RenderData{Group: g, Invocation: g.Invocation}
			m.merge(raiseAt(effect, g.Invocation))
		}
	}
	l.Mask.merge(m)
}

// Reschedule raises the lanes of unresolved entries whose group asked for
// requeue, at the group's invocation site and at the draw site. Bindings
// use the group's invocation too, not their own. It is called after every
// render target bind.
func (l *List) Reschedule(src Source) {
	for s := range l.Stages {
		stage := group.Stage(s)
		q := &l.Stages[s]
		for _, d := range q.Effects {
			l.reschedule(stage, ActionEffect, d, src)
		}
		for _, d := range q.Bindings {
			l.reschedule(stage, ActionBinding, d, src)
		}
	}
}

func (l *List) reschedule(stage group.Stage, kind ActionKind, d RenderData, src Source) {
	if d.Resolved() || !d.Group.Requeue {
		return
	}
	l.Mask.merge(raiseAt(Lane(kind, stage), d.Group.Invocation))
	if src.PreviewUnresolved(d.Group) {
		l.Mask.merge(raiseAt(Lane(ActionPreview, stage), d.Group.Invocation))
		l.Preview = RenderData{Group: d.Group, Invocation: d.Group.Invocation}
	}
}

// ClearQueue drops the changed lanes at site together with the effect and
// binding entries of the changed stages that were waiting for site.
func (l *List) ClearQueue(changed Lanes, site group.CallSite) {
	if !l.Mask.Has(site, changed) {
		return
	}
	l.Mask.Clear(site, changed)
	for s := range l.Stages {
		stage := group.Stage(s)
		q := &l.Stages[s]
		if changed.Has(Lane(ActionEffect, stage)) {
			dropAt(q.Effects, site)
		}
		if changed.Has(Lane(ActionBinding, stage)) {
			dropAt(q.Bindings, site)
		}
	}
}

func dropAt[K comparable](q map[K]RenderData, site group.CallSite) {
	for k, d := range q {
		if d.Invocation == site {
			delete(q, k)
		}
	}
}

// ClearForPipelineChange clears the queue after the shaders of the changed
// lanes were replaced. Render target site effects and bindings whose draw
// lane is still pending go first, then the draw and bind pipeline sites.
func (l *List) ClearForPipelineChange(changed Lanes) {
	rt := l.Mask[group.CallBindRenderTarget] & (KindLanes(ActionEffect) | KindLanes(ActionBinding))
	if rt != 0 {
		l.ClearQueue(rt&l.Mask[group.CallDraw]&changed, group.CallBindRenderTarget)
	}
	l.ClearQueue(changed, group.CallDraw)
	l.ClearQueue(changed, group.CallBindPipeline)
}

// Pending returns the number of queued effect, binding and constant
// entries across all stages.
func (l *List) Pending() (effects, bindings, constants int) {
	for i := range l.Stages {
		effects += len(l.Stages[i].Effects)
		bindings += len(l.Stages[i].Bindings)
		constants += len(l.Stages[i].Constants)
	}
	return effects, bindings, constants
}
