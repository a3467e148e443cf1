package dispatch

import (
	"testing"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/resolve"
)

type fakeSource struct {
	techs     map[group.ID][]api.Technique
	rendered  map[api.Technique]bool
	constants map[group.ID]bool
	bindings  map[group.ID]bool
	editing   group.ID
	matched   bool
	target    bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		techs:     make(map[group.ID][]api.Technique),
		rendered:  make(map[api.Technique]bool),
		constants: make(map[group.ID]bool),
		bindings:  make(map[group.ID]bool),
	}
}

func (s *fakeSource) ConstantsUpdated(id group.ID) bool { return s.constants[id] }
func (s *fakeSource) BindingsUpdated(id group.ID) bool  { return s.bindings[id] }

func (s *fakeSource) PendingTechniques(g *group.Group, dst []api.Technique) []api.Technique {
	for _, t := range s.techs[g.ID()] {
		if !s.rendered[t] {
			dst = append(dst, t)
		}
	}
	return dst
}

func (s *fakeSource) PreviewPending(g *group.Group) bool {
	return g.ID() == s.editing && !s.matched
}

func (s *fakeSource) PreviewUnresolved(g *group.Group) bool {
	return s.PreviewPending(g) && !s.target
}

func setup(t *testing.T, configure func(g *group.Group)) (*List, *group.Group, *fakeSource) {
	t.Helper()
	g := group.New("g")
	g.Hashes[group.StagePixel] = group.NewHashSet(7)
	g.SetActive(true)
	if configure != nil {
		configure(g)
	}
	store := group.NewStore()
	store.Add(g)

	src := newFakeSource()
	src.techs[g.ID()] = []api.Technique{1}

	l := NewList()
	if changed := l.BindShader(group.StagePixel, 7, store); changed != StageLanes(group.StagePixel) {
		t.Fatalf("BindShader changed = %v, want pixel lanes", changed)
	}
	l.CheckCall(src)
	return l, g, src
}

// draw mimics the draw handler for effects: consume the draw lanes, then
// fire and erase whatever is ready.
func draw(l *List, res Resolver) []api.Technique {
	if l.Mask.Clear(group.CallDraw, KindLanes(ActionEffect)) == 0 {
		return nil
	}
	var fired []api.Technique
	for s := range l.Stages {
		q := l.Stages[s].Effects
		ready := QueueOrDequeue(q, group.CallDraw, res, nil)
		for _, t := range ready {
			delete(q, t)
		}
		fired = append(fired, ready...)
	}
	return fired
}

func always(r api.ResourceHandle) Resolver {
	return func(*group.Group) resolve.Target {
		return resolve.Target{Resource: r, Format: api.FormatR8G8B8A8Unorm}
	}
}

func TestLaneLayout(t *testing.T) {
	tests := []struct {
		name string
		got  Lanes
		want Lanes
	}{
		{"effect pixel", Lane(ActionEffect, group.StagePixel), 0b1},
		{"binding vertex", Lane(ActionBinding, group.StageVertex), 0b10000},
		{"preview compute", Lane(ActionPreview, group.StageCompute), 1 << 11},
		{"binding kind", KindLanes(ActionBinding), 0b111000},
		{"pixel stage", StageLanes(group.StagePixel), 0b001001001001},
		{"compute stage", StageLanes(group.StageCompute), 0b100100100100},
		{"all", AllLanes, 0xfff},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %#b, want %#b", tt.name, tt.got, tt.want)
		}
	}
}

func TestMaskClearReturnsSetLanes(t *testing.T) {
	var m Mask
	m.Raise(group.CallBindRenderTarget, Lane(ActionEffect, group.StagePixel))
	if got := m.Clear(group.CallBindRenderTarget, KindLanes(ActionEffect)); got != Lane(ActionEffect, group.StagePixel) {
		t.Errorf("Clear = %v, want effect/pixel", got)
	}
	if got := m.Clear(group.CallBindRenderTarget, KindLanes(ActionEffect)); got != 0 {
		t.Errorf("second Clear = %v, want none", got)
	}
	if m.Any() {
		t.Error("mask not empty")
	}
}

func TestDispatchOnceAcrossDraws(t *testing.T) {
	l, _, _ := setup(t, nil)

	if !l.Mask.Has(group.CallDraw, Lane(ActionEffect, group.StagePixel)) {
		t.Fatal("effect lane not raised at draw")
	}
	total := 0
	for i := 0; i < 5; i++ {
		total += len(draw(l, always(42)))
	}
	if total != 1 {
		t.Errorf("dispatched %d times across 5 draws, want 1", total)
	}
	if n := len(l.Stages[group.StagePixel].Effects); n != 0 {
		t.Errorf("effects queue holds %d entries after dispatch, want 0", n)
	}
}

func TestRequeueDispatchesOnThirdRenderTargetBind(t *testing.T) {
	l, _, src := setup(t, func(g *group.Group) { g.Requeue = true })

	bound := 0
	res := func(*group.Group) resolve.Target {
		if bound < 3 {
			return resolve.Target{}
		}
		return resolve.Target{Resource: 9}
	}

	if fired := draw(l, res); len(fired) != 0 {
		t.Fatalf("fired before any render target bind: %v", fired)
	}
	for bound = 1; bound <= 3; bound++ {
		l.Reschedule(src)
		fired := draw(l, res)
		if bound < 3 {
			if len(fired) != 0 {
				t.Errorf("bind %d: fired %v before the target resolved", bound, fired)
			}
			if n := len(l.Stages[group.StagePixel].Effects); n != 1 {
				t.Errorf("bind %d: queue holds %d entries, want 1", bound, n)
			}
			continue
		}
		if len(fired) != 1 || fired[0] != 1 {
			t.Errorf("bind 3: fired %v, want [1]", fired)
		}
	}
	if n := len(l.Stages[group.StagePixel].Effects); n != 0 {
		t.Errorf("queue holds %d entries after dispatch, want 0", n)
	}
}

func TestMissWithoutRequeueDrops(t *testing.T) {
	l, _, src := setup(t, nil)
	draw(l, func(*group.Group) resolve.Target { return resolve.Target{} })
	if n := len(l.Stages[group.StagePixel].Effects); n != 0 {
		t.Errorf("queue holds %d entries, want 0", n)
	}
	l.Reschedule(src)
	if l.Mask.Any() {
		t.Errorf("Reschedule raised %v for a dropped entry", l.Mask)
	}
}

func TestInvocationSiteWaitsForSite(t *testing.T) {
	l, _, _ := setup(t, func(g *group.Group) { g.Invocation = group.CallBindRenderTarget })
	effect := Lane(ActionEffect, group.StagePixel)

	if !l.Mask.Has(group.CallBindRenderTarget, effect) || !l.Mask.Has(group.CallDraw, effect) {
		t.Fatalf("mask = %v, want effect at draw and render target", l.Mask)
	}
	if fired := draw(l, always(5)); len(fired) != 0 {
		t.Fatalf("fired at draw: %v", fired)
	}
	q := l.Stages[group.StagePixel].Effects
	if d := q[1]; d.Resource != 5 {
		t.Fatalf("entry resource = %d, want 5", d.Resource)
	}
	l.Mask.Clear(group.CallBindRenderTarget, effect)
	ready := QueueOrDequeue(q, group.CallBindRenderTarget, always(6), nil)
	if len(ready) != 1 || ready[0] != 1 {
		t.Errorf("ready at render target = %v, want [1]", ready)
	}
	if d := q[1]; d.Resource != 5 {
		t.Errorf("resource re-resolved outside draw: %d", d.Resource)
	}
}

func TestCheckCallSkipsQueuedAndRendered(t *testing.T) {
	l, g, src := setup(t, nil)
	l.Mask.Reset()
	l.CheckCall(src)
	if l.Mask.Any() {
		t.Errorf("re-check raised %v for an already queued entry", l.Mask)
	}

	l.Reset()
	src.rendered[1] = true
	store := group.NewStore()
	store.Add(g)
	l.BindShader(group.StagePixel, 7, store)
	l.CheckCall(src)
	if len(l.Stages[group.StagePixel].Effects) != 0 || l.Mask.Any() {
		t.Error("rendered technique was queued")
	}
}

func TestCheckCallInactiveGroup(t *testing.T) {
	l, g, src := setup(t, nil)
	l.Reset()
	g.SetActive(false)
	store := group.NewStore()
	store.Add(g)
	l.BindShader(group.StagePixel, 7, store)
	l.CheckCall(src)
	if l.Mask.Any() {
		t.Errorf("inactive group raised %v", l.Mask)
	}
}

func TestCheckCallBindingsAndConstants(t *testing.T) {
	l, g, _ := setup(t, func(g *group.Group) {
		g.ProvideTextureBinding = true
		g.CopyTextureBinding = true
		g.BindingInvocation = group.CallBindRenderTarget
		g.ExtractConstants = true
	})
	binding := Lane(ActionBinding, group.StagePixel)
	constant := Lane(ActionConstant, group.StagePixel)
	q := l.Stages[group.StagePixel]

	if d, ok := q.Bindings[g.ID()]; !ok || d.Invocation != group.CallBindRenderTarget {
		t.Errorf("binding entry = %+v, %v, want invocation render target", d, ok)
	}
	if !l.Mask.Has(group.CallBindRenderTarget, binding) || !l.Mask.Has(group.CallDraw, binding) {
		t.Errorf("binding lanes = %v", l.Mask)
	}
	if _, ok := q.Constants[g.ID()]; !ok {
		t.Error("constants not queued")
	}
	if !l.Mask.Has(group.CallDraw, constant) || l.Mask.Has(group.CallBindRenderTarget, constant) {
		t.Errorf("constant lanes = %v, want draw only", l.Mask)
	}
}

func TestCheckCallExtractedBindingFiresAtDraw(t *testing.T) {
	l, g, _ := setup(t, func(g *group.Group) {
		g.ProvideTextureBinding = true
		g.CopyTextureBinding = true
		g.ExtractSRVs = true
		g.BindingInvocation = group.CallBindPipeline
	})
	if d := l.Stages[group.StagePixel].Bindings[g.ID()]; d.Invocation != group.CallDraw {
		t.Errorf("invocation = %v, want draw", d.Invocation)
	}
	if l.Mask.Has(group.CallBindPipeline, Lane(ActionBinding, group.StagePixel)) {
		t.Error("binding raised at bind pipeline")
	}
}

func TestCheckCallUpdatedThisFrame(t *testing.T) {
	g := group.New("g")
	g.Hashes[group.StagePixel] = group.NewHashSet(7)
	g.ProvideTextureBinding = true
	g.ExtractConstants = true
	g.SetActive(true)
	store := group.NewStore()
	store.Add(g)

	src := newFakeSource()
	src.bindings[g.ID()] = true
	src.constants[g.ID()] = true

	l := NewList()
	l.BindShader(group.StagePixel, 7, store)
	l.CheckCall(src)
	if l.Mask.Any() {
		t.Errorf("mask = %v, want none", l.Mask)
	}
}

func TestCheckCallPreview(t *testing.T) {
	g := group.New("g")
	g.Hashes[group.StageVertex] = group.NewHashSet(3)
	g.Invocation = group.CallBindPipeline
	g.SetActive(true)
	store := group.NewStore()
	store.Add(g)

	src := newFakeSource()
	src.editing = g.ID()

	l := NewList()
	l.BindShader(group.StageVertex, 3, store)
	l.CheckCall(src)

	preview := Lane(ActionPreview, group.StageVertex)
	if !l.Mask.Has(group.CallBindPipeline, preview) || !l.Mask.Has(group.CallDraw, preview) {
		t.Errorf("preview lanes = %v", l.Mask)
	}
	if l.Preview.Group != g || l.Preview.Invocation != group.CallBindPipeline {
		t.Errorf("Preview = %+v", l.Preview)
	}
}

func TestClearForPipelineChange(t *testing.T) {
	l, _, _ := setup(t, func(g *group.Group) { g.Invocation = group.CallBindRenderTarget })

	l.ClearForPipelineChange(StageLanes(group.StagePixel))
	if l.Mask.Any() {
		t.Errorf("mask = %v after pipeline change, want empty", l.Mask)
	}
	if n := len(l.Stages[group.StagePixel].Effects); n != 0 {
		t.Errorf("effects = %d, want 0", n)
	}
}

func TestClearForPipelineChangeKeepsOtherStages(t *testing.T) {
	l, _, _ := setup(t, nil)
	l.ClearForPipelineChange(StageLanes(group.StageVertex))
	if !l.Mask.Has(group.CallDraw, Lane(ActionEffect, group.StagePixel)) {
		t.Error("pixel lane cleared by a vertex change")
	}
	if n := len(l.Stages[group.StagePixel].Effects); n != 1 {
		t.Errorf("effects = %d, want 1", n)
	}
}

func TestClearForPipelineChangeKeepsResolvedRenderTargetEntries(t *testing.T) {
	l, _, _ := setup(t, func(g *group.Group) { g.Invocation = group.CallBindRenderTarget })
	draw(l, always(5))

	// The draw lane was consumed, so the render target entry survives.
	l.ClearForPipelineChange(StageLanes(group.StagePixel))
	if !l.Mask.Has(group.CallBindRenderTarget, Lane(ActionEffect, group.StagePixel)) {
		t.Error("render target lane cleared")
	}
	if n := len(l.Stages[group.StagePixel].Effects); n != 1 {
		t.Errorf("effects = %d, want 1", n)
	}
}

func TestBindShaderUnchangedHash(t *testing.T) {
	l, _, _ := setup(t, func(g *group.Group) { g.ExtractConstants = true })
	store := group.NewStore()
	if changed := l.BindShader(group.StagePixel, 7, store); changed != 0 {
		t.Errorf("changed = %v for the same hash", changed)
	}
	if n := len(l.Stages[group.StagePixel].Constants); n != 1 {
		t.Errorf("constants = %d, want 1", n)
	}
	if changed := l.BindShader(group.StagePixel, 8, store); changed == 0 {
		t.Error("hash change not reported")
	}
	if n := len(l.Stages[group.StagePixel].Constants); n != 0 {
		t.Errorf("constants = %d after hash change, want 0", n)
	}
}

func TestResetClearsEverything(t *testing.T) {
	l, _, _ := setup(t, nil)
	l.Reset()
	e, b, c := l.Pending()
	if l.Mask.Any() || e+b+c != 0 || l.Stages[group.StagePixel].Hash != 0 {
		t.Errorf("after Reset: mask %v, pending %d/%d/%d", l.Mask, e, b, c)
	}
}

func TestRescheduleBindingUsesGroupInvocation(t *testing.T) {
	l, _, src := setup(t, func(g *group.Group) {
		g.Requeue = true
		g.Invocation = group.CallBindPipeline
		g.ProvideTextureBinding = true
		g.CopyTextureBinding = true
		g.BindingInvocation = group.CallBindRenderTarget
	})
	q := l.Stages[group.StagePixel].Bindings
	if len(q) != 1 {
		t.Fatalf("bindings queued = %d, want 1", len(q))
	}
	for _, d := range q {
		if d.Invocation != group.CallBindRenderTarget {
			t.Fatalf("binding invocation = %v, want bind_render_target", d.Invocation)
		}
	}

	miss := func(*group.Group) resolve.Target { return resolve.Target{} }
	QueueOrDequeue(q, group.CallDraw, miss, nil)
	if len(q) != 1 {
		t.Fatalf("requeued binding dropped on miss")
	}

	l.Mask.Reset()
	l.Reschedule(src)
	binding := Lane(ActionBinding, group.StagePixel)
	if !l.Mask.Has(group.CallBindPipeline, binding) || !l.Mask.Has(group.CallDraw, binding) {
		t.Errorf("mask = %v, want binding at bind_pipeline and draw", l.Mask)
	}
	if l.Mask.Has(group.CallBindRenderTarget, binding) {
		t.Errorf("mask = %v, binding raised at the entry's own site", l.Mask)
	}
}
