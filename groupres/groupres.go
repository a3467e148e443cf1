// Package groupres owns the per-group copies a group needs besides the
// game's own resources: the alpha preservation texture, the texture binding
// copy and the constant readback buffer.
//
// Consumers never create resources directly. They check compatibility with
// the resource they are about to copy and, on mismatch, mark the group
// resource invalid with the wanted description. CheckGroups recreates
// invalid resources at present.
package groupres

import (
	"sync"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/internal/shard"
)

// Kind selects one of a group's resources.
type Kind uint8

// Resource kinds.
const (
	KindAlpha Kind = iota
	KindBinding
	KindConstants
	KindCount
)

func (k Kind) String() string {
	switch k {
	case KindAlpha:
		return "alpha"
	case KindBinding:
		return "binding"
	case KindConstants:
		return "constants"
	}
	return "unknown"
}

// State is the lifecycle state of a group resource.
type State uint8

// Resource states.
const (
	StateInvalid State = iota
	StateValid
	StateRecreated
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateValid:
		return "valid"
	case StateRecreated:
		return "recreated"
	case StateCleared:
		return "cleared"
	}
	return "unknown"
}

// Resource is one group resource. An owning resource holds a copy created
// by the manager. A binding may instead borrow the game's resource, in
// which case Borrowed names it and the views belong to the view cache.
type Resource struct {
	Res        api.ResourceHandle
	ViewFormat api.Format
	RTV        api.ResourceView
	RTVSRGB    api.ResourceView
	SRV        api.ResourceView

	// Target is the description the next recreation copies.
	Target api.ResourceDesc
	State  State

	Owning   bool
	Borrowed api.ResourceHandle
}

type set struct {
	mu  sync.Mutex
	res [KindCount]Resource
}

func newSet() *set {
	s := &set{}
	for i := range s.res {
		s.res[i] = Resource{State: StateInvalid, Owning: true}
	}
	return s
}

// Manager holds the resources of every group on one device.
type Manager struct {
	dev  api.Device
	sets *shard.Map[group.ID, *set]
}

func hashID(id group.ID) uint64 { return shard.HandleHasher(uint64(id)) }

// NewManager creates a manager creating resources on dev.
func NewManager(dev api.Device) *Manager {
	return &Manager{dev: dev, sets: shard.New[group.ID, *set](hashID)}
}

func (m *Manager) set(id group.ID) *set {
	return m.sets.GetOrCreate(id, newSet)
}

// Get returns a copy of the resource of kind for group id.
func (m *Manager) Get(id group.ID, kind Kind) Resource {
	if kind >= KindCount {
		return Resource{}
	}
	s := m.set(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res[kind]
}

// Update calls fn with the resource of kind for group id under the set's
// lock.
func (m *Manager) Update(id group.ID, kind Kind, fn func(r *Resource)) {
	if kind >= KindCount {
		return
	}
	s := m.set(id)
	s.mu.Lock()
	fn(&s.res[kind])
	s.mu.Unlock()
}

// Invalidate marks the resource of kind for recreation from target, viewed
// with viewFormat.
func (m *Manager) Invalidate(id group.ID, kind Kind, target api.ResourceDesc, viewFormat api.Format) {
	m.Update(id, kind, func(r *Resource) {
		r.Target = target
		r.ViewFormat = viewFormat
		r.State = StateInvalid
	})
}

// SetState sets the state of the resource of kind.
func (m *Manager) SetState(id group.ID, kind Kind, st State) {
	m.Update(id, kind, func(r *Resource) { r.State = st })
}

// IsCompatible reports whether res can be copied into the group's resource
// of kind: textures must agree in format, size and levels, buffers in size.
func (m *Manager) IsCompatible(id group.ID, kind Kind, res api.ResourceHandle) bool {
	own := m.Get(id, kind).Res
	if res == 0 || own == 0 {
		return false
	}
	src := m.dev.ResourceDesc(res)
	dst := m.dev.ResourceDesc(own)
	switch kind {
	case KindAlpha, KindBinding:
		return src.Format == dst.Format &&
			src.Size.Width == dst.Size.Width &&
			src.Size.Height == dst.Size.Height &&
			src.Levels == dst.Levels
	case KindConstants:
		return src.BufferSize == dst.BufferSize
	}
	return false
}

func enabled(g *group.Group, kind Kind) bool {
	switch kind {
	case KindAlpha:
		return g.AlphaEnabled()
	case KindBinding:
		return g.BindingEnabled()
	case KindConstants:
		return g.ConstantsEnabled()
	}
	return false
}

// ClearOnMiss reports whether the resource of kind is replaced by the empty
// binding when the group did not match in a frame.
func ClearOnMiss(g *group.Group, kind Kind) bool {
	return kind == KindBinding && g.ClearBindings
}

// CheckGroups disposes the owning resources of disabled kinds and recreates
// the invalid ones of enabled kinds. It returns the number recreated.
func (m *Manager) CheckGroups(groups []*group.Group) int {
	recreated := 0
	for _, g := range groups {
		s := m.set(g.ID())
		s.mu.Lock()
		for k := range s.res {
			kind := Kind(k)
			r := &s.res[k]
			if !r.Owning {
				continue
			}
			if !enabled(g, kind) {
				m.dispose(r)
				continue
			}
			if r.State != StateInvalid || r.Target.Type == api.ResourceTypeUnknown {
				continue
			}
			m.dispose(r)
			m.create(kind, r)
			r.State = StateRecreated
			recreated++
		}
		s.mu.Unlock()
	}
	return recreated
}

func (m *Manager) create(kind Kind, r *Resource) {
	if kind == KindConstants {
		desc := api.BufferDesc(r.Target.BufferSize, api.HeapGPUToCPU, api.UsageCopyDest|api.UsageCopySource)
		res, ok := m.dev.CreateResource(desc, api.UsageCopyDest)
		if !ok {
			logx.L().Error("groupres: create constant copy buffer failed", "size", desc.BufferSize)
			return
		}
		r.Res = res
		return
	}

	usage := api.UsageCopyDest | api.UsageCopySource | api.UsageShaderResource
	validRT := r.Target.Format.IsRenderTarget()
	if validRT {
		usage |= api.UsageRenderTarget
	}
	desc := api.TextureDesc(r.Target.Size.Width, r.Target.Size.Height, 1, r.Target.Format, api.HeapGPUOnly, usage)
	res, ok := m.dev.CreateResource(desc, api.UsageCopyDest)
	if !ok {
		logx.L().Error("groupres: create group texture failed", "kind", kind, "width", desc.Size.Width, "height", desc.Size.Height, "format", desc.Format)
		return
	}
	r.Res = res

	view := func(usage api.ResourceUsage, srgb bool) api.ResourceView {
		v, ok := m.dev.CreateResourceView(res, usage, api.ResourceViewDesc{Format: r.ViewFormat.DefaultTyped(srgb)})
		if !ok {
			logx.L().Error("groupres: create view failed", "kind", kind, "usage", usage, "srgb", srgb)
			return 0
		}
		return v
	}
	if validRT {
		r.SRV = view(api.UsageShaderResource, false)
		r.RTV = view(api.UsageRenderTarget, false)
	}
	r.RTVSRGB = view(api.UsageRenderTarget, true)
}

func (m *Manager) dispose(r *Resource) {
	for _, v := range [...]api.ResourceView{r.SRV, r.RTV, r.RTVSRGB} {
		if v != 0 {
			m.dev.DestroyResourceView(v)
		}
	}
	if r.Res != 0 {
		m.dev.DestroyResource(r.Res)
	}
	r.Res, r.SRV, r.RTV, r.RTVSRGB = 0, 0, 0, 0
}

// Borrow switches the binding of group id to the game resource res.
func (m *Manager) Borrow(id group.ID, res api.ResourceHandle, target api.ResourceDesc, viewFormat api.Format) {
	m.Update(id, KindBinding, func(r *Resource) {
		if r.Owning {
			m.dispose(r)
		}
		r.Owning = false
		r.Borrowed = res
		r.Target = target
		r.ViewFormat = viewFormat
		r.State = StateValid
	})
}

// Own switches the binding of group id back to a manager-owned copy of
// target. The copy is created at the next CheckGroups.
func (m *Manager) Own(id group.ID, target api.ResourceDesc, viewFormat api.Format) {
	m.Update(id, KindBinding, func(r *Resource) {
		if r.Owning {
			return
		}
		r.Owning = true
		r.Borrowed = 0
		r.Target = target
		r.ViewFormat = viewFormat
		r.State = StateInvalid
	})
}

// Dispose frees the resources of group id and forgets it.
func (m *Manager) Dispose(id group.ID) {
	s, ok := m.sets.Get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	for k := range s.res {
		if s.res[k].Owning {
			m.dispose(&s.res[k])
		}
	}
	s.mu.Unlock()
	m.sets.Delete(id)
}

// DisposeAll frees the resources of every group.
func (m *Manager) DisposeAll() {
	var ids []group.ID
	m.sets.Range(func(id group.ID, _ *set) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		m.Dispose(id)
	}
}
