// Package view caches the render target and shader resource views the core
// creates on resources it does not own.
//
// Views are created lazily on first use and disposed at present when they
// were not used during the frame. Every entry moves through
//
//	Invalid <- Valid <-> Used
//
// Get marks an entry Used, CheckViews turns Used back into Valid and
// disposes the rest. A destroyed resource marks its entry Invalid so that
// Get never hands out views of a dead resource.
package view

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/internal/logx"
)

// State is the lifecycle state of a cache entry.
type State uint8

// Entry states.
const (
	StateInvalid State = iota
	StateValid
	StateUsed
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateValid:
		return "valid"
	case StateUsed:
		return "used"
	}
	return "unknown"
}

// Views are the views kept for one resource. A zero view was not created,
// either because the resource does not allow that usage or creation failed.
type Views struct {
	Resource api.ResourceHandle
	RTV      api.ResourceView
	RTVSRGB  api.ResourceView
	SRV      api.ResourceView
	SRVSRGB  api.ResourceView
}

// entry is a cache slot. state moves to Used under the read lock, every
// other transition and refs happen under the write lock.
type entry struct {
	views Views
	state atomic.Uint32
	refs  int
}

func newEntry(v Views) *entry {
	e := &entry{views: v}
	e.state.Store(uint32(StateValid))
	return e
}

func (e *entry) load() State { return State(e.state.Load()) }

func (e *entry) set(s State) { e.state.Store(uint32(s)) }

// use marks e used unless it was invalidated.
func (e *entry) use() (Views, bool) {
	if e.load() == StateInvalid {
		return Views{}, false
	}
	e.set(StateUsed)
	return e.views, true
}

// Cache is the device-wide view cache. It is safe for concurrent use.
// Driver calls are made outside the lock.
type Cache struct {
	mu        sync.RWMutex
	dev       api.Device
	entries   map[api.ResourceHandle]*entry
	reloading bool
}

// NewCache creates an empty cache creating views on dev.
func NewCache(dev api.Device) *Cache {
	return &Cache{dev: dev, entries: make(map[api.ResourceHandle]*entry)}
}

// Get returns the views of res, creating them on first use. format
// overrides the resource's own format when not unknown. It reports false
// for a zero handle or a destroyed resource.
func (c *Cache) Get(res api.ResourceHandle, format api.Format) (Views, bool) {
	if res == 0 {
		return Views{}, false
	}
	c.mu.RLock()
	if e, ok := c.entries[res]; ok {
		v, ok := e.use()
		c.mu.RUnlock()
		return v, ok
	}
	c.mu.RUnlock()

	v := c.create(res, format)

	c.mu.Lock()
	e, ok := c.entries[res]
	if !ok {
		e = newEntry(v)
		c.entries[res] = e
	}
	got, found := e.use()
	c.mu.Unlock()
	if ok {
		// Another caller created the entry first.
		c.dispose(v)
	}
	return got, found
}

func (c *Cache) create(res api.ResourceHandle, format api.Format) Views {
	v := Views{Resource: res}
	desc := c.dev.ResourceDesc(res)
	if desc.Type != api.ResourceTypeTexture2D || !desc.Usage.Has(api.UsageRenderTarget|api.UsageShaderResource) {
		return v
	}
	if format == api.FormatUnknown {
		format = desc.Format
	}
	linear := format.DefaultTyped(false)
	srgb := format.DefaultTyped(true)

	if desc.Usage.Has(api.UsageRenderTarget) {
		v.RTV = c.createView(res, api.UsageRenderTarget, linear)
		v.RTVSRGB = c.createView(res, api.UsageRenderTarget, srgb)
	}
	if desc.Usage.Has(api.UsageShaderResource) && desc.Format != api.FormatINTZ {
		v.SRV = c.createView(res, api.UsageShaderResource, linear)
		v.SRVSRGB = c.createView(res, api.UsageShaderResource, srgb)
	}
	return v
}

func (c *Cache) createView(res api.ResourceHandle, usage api.ResourceUsage, format api.Format) api.ResourceView {
	view, ok := c.dev.CreateResourceView(res, usage, api.ResourceViewDesc{Format: format})
	if !ok {
		logx.L().Warn("view: create failed", "resource", res, "usage", usage, "format", format)
		return 0
	}
	return view
}

func (c *Cache) dispose(v Views) {
	for _, view := range [...]api.ResourceView{v.RTV, v.RTVSRGB, v.SRV, v.SRVSRGB} {
		if view != 0 {
			c.dev.DestroyResourceView(view)
		}
	}
}

// Retain keeps the entry of res alive across CheckViews until Release.
func (c *Cache) Retain(res api.ResourceHandle) {
	c.mu.Lock()
	if e, ok := c.entries[res]; ok {
		e.refs++
	}
	c.mu.Unlock()
}

// Release drops a reference taken by Retain.
func (c *Cache) Release(res api.ResourceHandle) {
	c.mu.Lock()
	if e, ok := c.entries[res]; ok && e.refs > 0 {
		e.refs--
	}
	c.mu.Unlock()
}

// OnDestroyResource invalidates the entry of res. Its views are disposed
// at the next CheckViews.
func (c *Cache) OnDestroyResource(res api.ResourceHandle) {
	c.mu.Lock()
	if e, ok := c.entries[res]; ok {
		e.set(StateInvalid)
	}
	c.mu.Unlock()
}

// SetReloading suspends CheckViews while the host reloads effects.
func (c *Cache) SetReloading(reloading bool) {
	c.mu.Lock()
	c.reloading = reloading
	c.mu.Unlock()
}

// CheckViews disposes the entries not used since the last call and not
// retained, and resets the used ones. It returns the number disposed.
func (c *Cache) CheckViews() int {
	var stale []Views
	c.mu.Lock()
	if c.reloading {
		c.mu.Unlock()
		return 0
	}
	for res, e := range c.entries {
		if e.load() == StateUsed {
			e.set(StateValid)
			continue
		}
		if e.refs > 0 {
			continue
		}
		stale = append(stale, e.views)
		delete(c.entries, res)
	}
	c.mu.Unlock()

	for _, v := range stale {
		c.dispose(v)
	}
	return len(stale)
}

// State returns the state of the entry for res.
func (c *Cache) State(res api.ResourceHandle) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[res]
	if !ok {
		return StateInvalid, false
	}
	return e.load(), true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear disposes every entry. It is called when the device goes away.
func (c *Cache) Clear() {
	c.mu.Lock()
	stale := make([]Views, 0, len(c.entries))
	for _, e := range c.entries {
		stale = append(stale, e.views)
	}
	clear(c.entries)
	c.mu.Unlock()

	for _, v := range stale {
		c.dispose(v)
	}
}

// PromoteRenderTarget adds shader resource usage to 2D render targets that
// lack it so their contents can be bound to effects. It reports whether
// desc was changed.
func PromoteRenderTarget(desc *api.ResourceDesc) bool {
	if desc.Type != api.ResourceTypeTexture2D || !desc.Usage.Has(api.UsageRenderTarget) || desc.Usage.Has(api.UsageShaderResource) {
		return false
	}
	desc.Usage |= api.UsageShaderResource
	return true
}
