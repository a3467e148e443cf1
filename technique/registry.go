// Package technique tracks the effect techniques of a runtime: their render
// order, which are enabled and which have already been rendered in the
// current frame.
package technique

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
)

// Special names a helper technique shipped with the addon. Special
// techniques are never listed and cannot be toggled by the user.
type Special uint8

// Special techniques.
const (
	TonemapToSDR Special = iota
	TonemapToHDR
	Flip
	Noop
	SpecialCount
)

var specialNames = [SpecialCount]string{
	TonemapToSDR: "REST_TONEMAP_TO_SDR",
	TonemapToHDR: "REST_TONEMAP_TO_HDR",
	Flip:         "REST_FLIP",
	Noop:         "REST_NOOP",
}

func (s Special) String() string {
	if s < SpecialCount {
		return specialNames[s]
	}
	return "unknown"
}

// IsSpecial reports whether name is the name of a special technique.
func IsSpecial(name string) (Special, bool) {
	for i, n := range specialNames {
		if n == name {
			return Special(i), true
		}
	}
	return SpecialCount, false
}

// Key returns the registry key of a technique, "name [effect]".
func Key(name, effect string) string {
	return name + " [" + effect + "]"
}

// Effect is a registered technique.
type Effect struct {
	Handle           api.Technique
	Key              string
	HideInScreenshot bool
	Timeout          time.Duration
	HasTimeout       bool

	loaded   time.Time
	enabled  atomic.Bool
	rendered atomic.Bool
}

// Enabled reports whether the user enabled the technique.
func (e *Effect) Enabled() bool { return e.enabled.Load() }

// Rendered reports whether the technique was rendered this frame.
func (e *Effect) Rendered() bool { return e.rendered.Load() }

// MarkRendered records that the technique was rendered this frame.
func (e *Effect) MarkRendered() { e.rendered.Store(true) }

// Event is a reload notification.
type Event uint8

// Reload events.
const (
	// EffectsReloading means the runtime is loading effects and handles are
	// about to change.
	EffectsReloading Event = iota
	// EffectsReloaded means the runtime finished loading effects.
	EffectsReloaded
)

func (e Event) String() string {
	if e == EffectsReloading {
		return "reloading"
	}
	return "reloaded"
}

// Registry holds the techniques of one runtime.
type Registry struct {
	mu        sync.RWMutex
	byKey     map[string]*Effect
	byHandle  map[api.Technique]*Effect
	sorted    []*Effect
	special   [SpecialCount]api.Technique
	prevCount int

	listeners []func(Event)

	// now is replaced in tests.
	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:    make(map[string]*Effect),
		byHandle: make(map[api.Technique]*Effect),
		now:      time.Now,
	}
}

// Subscribe registers fn to be called on every reload event.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Reload rebuilds the registry after the runtime loaded effects and
// notifies subscribers. Fewer techniques than last time, or none at all,
// means the runtime is still loading.
func (r *Registry) Reload(techs []api.TechniqueInfo) Event {
	r.mu.Lock()
	count := r.rebuild(techs)
	ev := EffectsReloaded
	if count == 0 || count < r.prevCount {
		ev = EffectsReloading
	}
	r.prevCount = count
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	logx.L().Debug("technique: effects reloaded", "count", count, "event", ev)
	for _, fn := range listeners {
		fn(ev)
	}
	return ev
}

// Reorder rebuilds the registry in the new render order without notifying
// subscribers.
func (r *Registry) Reorder(techs []api.TechniqueInfo) {
	r.mu.Lock()
	r.rebuild(techs)
	r.mu.Unlock()
}

func (r *Registry) rebuild(techs []api.TechniqueInfo) int {
	clear(r.byKey)
	clear(r.byHandle)
	r.sorted = r.sorted[:0]
	now := r.now()
	for _, t := range techs {
		if s, ok := IsSpecial(t.Name); ok {
			r.special[s] = t.Handle
			continue
		}
		key := Key(t.Name, t.Effect)
		if _, dup := r.byKey[key]; dup {
			continue
		}
		e := &Effect{
			Handle:           t.Handle,
			Key:              key,
			HideInScreenshot: t.HideInScreenshot,
			Timeout:          t.Timeout,
			HasTimeout:       t.HasTimeout,
			loaded:           now,
		}
		e.enabled.Store(t.Enabled)
		r.byKey[key] = e
		r.byHandle[t.Handle] = e
		r.sorted = append(r.sorted, e)
	}
	return len(r.sorted)
}

// SetState records a user toggle of t. It reports true when the change
// must be blocked, which is the case for special techniques.
func (r *Registry) SetState(t api.TechniqueInfo, enabled bool) bool {
	if _, ok := IsSpecial(t.Name); ok {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byKey[Key(t.Name, t.Effect)]; ok {
		e.enabled.Store(enabled)
	}
	return false
}

// Lookup returns the technique registered under key.
func (r *Registry) Lookup(key string) (*Effect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	return e, ok
}

// Get returns the technique with handle h.
func (r *Registry) Get(h api.Technique) (*Effect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHandle[h]
	return e, ok
}

// Special returns the handle of a special technique, zero when the runtime
// did not load it.
func (r *Registry) Special(s Special) api.Technique {
	if s >= SpecialCount {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.special[s]
}

// Sorted appends the techniques in render order to dst.
func (r *Registry) Sorted(dst []*Effect) []*Effect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(dst, r.sorted...)
}

// Keys returns the keys of all techniques in render order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, len(r.sorted))
	for i, e := range r.sorted {
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of registered techniques.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sorted)
}

// Pending appends the techniques g renders that were not rendered this
// frame. A group allowing all techniques renders every enabled one, minus
// its own list when that list holds exceptions. Otherwise only the group's
// own techniques are rendered.
func (r *Registry) Pending(g *group.Group, dst []api.Technique) []api.Technique {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g.AllowAllTechniques {
		for _, e := range r.sorted {
			if !e.Enabled() || e.Rendered() {
				continue
			}
			if g.TechniqueExceptions && g.HasTechnique(e.Key) {
				continue
			}
			dst = append(dst, e.Handle)
		}
		return dst
	}
	for _, key := range g.Techniques {
		if e, ok := r.byKey[key]; ok && !e.Rendered() {
			dst = append(dst, e.Handle)
		}
	}
	return dst
}

// Disabler switches techniques off in the runtime.
type Disabler interface {
	SetTechniqueState(t api.Technique, enabled bool)
}

// OnPresent prepares the next frame. Enabled techniques whose timeout ran
// out are disabled through rt. The rendered flag is reset, except for
// techniques hidden from screenshots while a screenshot is taken, which
// are marked rendered so nothing draws them.
func (r *Registry) OnPresent(rt Disabler, screenshot bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, e := range r.sorted {
		if !e.Enabled() {
			continue
		}
		if e.HasTimeout && now.Sub(e.loaded) >= e.Timeout {
			rt.SetTechniqueState(e.Handle, false)
			e.enabled.Store(false)
			logx.L().Debug("technique: timed out", "technique", e.Key)
			continue
		}
		e.rendered.Store(screenshot && e.HideInScreenshot)
	}
}

// ResetRendered clears the rendered flag of every technique.
func (r *Registry) ResetRendered() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.sorted {
		e.rendered.Store(false)
	}
}
