package technique

import (
	"slices"
	"testing"
	"time"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/fakehost"
)

func techniques() []api.TechniqueInfo {
	return []api.TechniqueInfo{
		{Handle: 1, Name: "Bloom", Effect: "Bloom.fx", Enabled: true},
		{Handle: 2, Name: "REST_FLIP", Effect: "REST.fx", Enabled: true},
		{Handle: 3, Name: "SMAA", Effect: "SMAA.fx", Enabled: false},
		{Handle: 4, Name: "Clarity", Effect: "Clarity.fx", Enabled: true},
	}
}

func TestReloadOrderAndSpecials(t *testing.T) {
	r := NewRegistry()
	r.Reload(techniques())

	want := []string{"Bloom [Bloom.fx]", "SMAA [SMAA.fx]", "Clarity [Clarity.fx]"}
	if got := r.Keys(); !slices.Equal(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
	if got := r.Special(Flip); got != 2 {
		t.Errorf("Special(Flip) = %d, want 2", got)
	}
	if got := r.Special(Noop); got != 0 {
		t.Errorf("Special(Noop) = %d, want 0", got)
	}
	if _, ok := r.Get(2); ok {
		t.Error("special technique registered")
	}
}

func TestReloadEvents(t *testing.T) {
	r := NewRegistry()
	var events []Event
	r.Subscribe(func(e Event) { events = append(events, e) })

	r.Reload(nil)
	r.Reload(techniques())
	r.Reload(techniques()[:2])

	want := []Event{EffectsReloading, EffectsReloaded, EffectsReloading}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestReorderDoesNotNotify(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Subscribe(func(Event) { called = true })
	techs := techniques()
	slices.Reverse(techs)
	r.Reorder(techs)
	if called {
		t.Error("Reorder notified subscribers")
	}
	if got := r.Keys()[0]; got != "Clarity [Clarity.fx]" {
		t.Errorf("first key = %q, want Clarity", got)
	}
}

func TestSetState(t *testing.T) {
	r := NewRegistry()
	r.Reload(techniques())

	if !r.SetState(api.TechniqueInfo{Name: "REST_NOOP", Effect: "REST.fx"}, true) {
		t.Error("special technique toggle not blocked")
	}
	if r.SetState(api.TechniqueInfo{Name: "SMAA", Effect: "SMAA.fx"}, true) {
		t.Error("regular technique toggle blocked")
	}
	if e, _ := r.Lookup("SMAA [SMAA.fx]"); !e.Enabled() {
		t.Error("SMAA not enabled")
	}
}

func TestPending(t *testing.T) {
	r := NewRegistry()
	r.Reload(techniques())

	all := group.New("all")
	if got := r.Pending(all, nil); !slices.Equal(got, []api.Technique{1, 4}) {
		t.Errorf("Pending(all) = %v, want [1 4]", got)
	}

	all.TechniqueExceptions = true
	all.SetTechniques([]string{"Bloom [Bloom.fx]"})
	if got := r.Pending(all, nil); !slices.Equal(got, []api.Technique{4}) {
		t.Errorf("Pending(exceptions) = %v, want [4]", got)
	}

	own := group.New("own")
	own.AllowAllTechniques = false
	own.SetTechniques([]string{"SMAA [SMAA.fx]", "Missing [x.fx]"})
	if got := r.Pending(own, nil); !slices.Equal(got, []api.Technique{3}) {
		t.Errorf("Pending(own) = %v, want [3]", got)
	}

	e, _ := r.Get(4)
	e.MarkRendered()
	all.TechniqueExceptions = false
	if got := r.Pending(all, nil); !slices.Equal(got, []api.Technique{1}) {
		t.Errorf("Pending after render = %v, want [1]", got)
	}
}

func TestOnPresent(t *testing.T) {
	r := NewRegistry()
	start := time.Unix(1000, 0)
	r.now = func() time.Time { return start }
	techs := techniques()
	techs[0].HasTimeout = true
	techs[0].Timeout = time.Second
	techs[3].HideInScreenshot = true
	r.Reload(techs)

	rt := fakehost.NewRuntime(fakehost.NewDevice(api.D3D11), 8, 8)
	rt.TechniqueList = techs

	for _, e := range r.Sorted(nil) {
		e.MarkRendered()
	}
	r.OnPresent(rt, false)
	bloom, _ := r.Get(1)
	clarity, _ := r.Get(4)
	if bloom.Rendered() || clarity.Rendered() {
		t.Error("rendered flags not reset")
	}
	if !bloom.Enabled() {
		t.Error("Bloom timed out early")
	}

	r.now = func() time.Time { return start.Add(time.Second) }
	r.OnPresent(rt, true)
	if bloom.Enabled() || rt.TechniqueList[0].Enabled {
		t.Error("Bloom not disabled after timeout")
	}
	if !clarity.Rendered() {
		t.Error("hidden technique not suppressed during screenshot")
	}
}
