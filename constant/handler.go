// Package constant extracts values from the constant buffers and push
// constants a game binds and feeds them into effect variables.
//
// Effect variables opt in with a source annotation naming the value. A group
// maps source names to byte offsets in the buffer it extracts from. Each
// group keeps the current and the previous extraction so variables may
// read either.
package constant

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/resolve"
	"github.com/gogpu/shadertoggle/state"
)

// Variable is the set of effect uniforms fed from one source name. All of
// them share the type of the first uniform registered under the name.
type Variable struct {
	Type    Type
	Handles []api.UniformVariable
}

// Uniforms sets effect uniform values.
type Uniforms interface {
	SetUniformFloat(v api.UniformVariable, values []float32)
	SetUniformInt(v api.UniformVariable, values []int32)
	SetUniformUint(v api.UniformVariable, values []uint32)
}

// Tracker records which groups had their constants extracted this frame.
type Tracker interface {
	ConstantsUpdated(id group.ID) bool
	MarkConstantsUpdated(id group.ID)
}

type buffers struct {
	cur, prev []byte
}

// Handler holds the variable registry and the per-group extraction
// buffers of one device.
type Handler struct {
	copier Copier

	varMu sync.RWMutex
	vars  map[string]*Variable

	bufMu sync.Mutex
	bufs  map[group.ID]*buffers
}

// NewHandler creates a handler reading descriptor-bound buffers through c.
func NewHandler(c Copier) *Handler {
	return &Handler{
		copier: c,
		vars:   make(map[string]*Variable),
		bufs:   make(map[group.ID]*buffers),
	}
}

// Copier returns the copier the handler reads buffers through.
func (h *Handler) Copier() Copier { return h.copier }

// ReloadVariables rebuilds the registry from the runtime's uniforms. Only
// uniforms with a source annotation and a supported type are kept. A
// uniform whose type differs from the one already registered under its
// source is skipped.
func (h *Handler) ReloadVariables(uniforms []api.UniformInfo) {
	h.varMu.Lock()
	defer h.varMu.Unlock()
	clear(h.vars)
	for _, u := range uniforms {
		if u.Source == "" {
			continue
		}
		t := TypeOf(u)
		if t == TypeUnknown {
			continue
		}
		v, ok := h.vars[u.Source]
		if !ok {
			h.vars[u.Source] = &Variable{Type: t, Handles: []api.UniformVariable{u.Handle}}
			continue
		}
		if v.Type == t {
			v.Handles = append(v.Handles, u.Handle)
		}
	}
	logx.L().Debug("constant: variables reloaded", "sources", len(h.vars))
}

// ClearVariables empties the registry while effects reload.
func (h *Handler) ClearVariables() {
	h.varMu.Lock()
	clear(h.vars)
	h.varMu.Unlock()
}

// Variable returns the variable registered under source.
func (h *Handler) Variable(source string) (Variable, bool) {
	h.varMu.RLock()
	defer h.varMu.RUnlock()
	v, ok := h.vars[source]
	if !ok {
		return Variable{}, false
	}
	return *v, true
}

// Sources returns the number of registered source names.
func (h *Handler) Sources() int {
	h.varMu.RLock()
	defer h.varMu.RUnlock()
	return len(h.vars)
}

// Buffer returns a copy of the current extraction of group id.
func (h *Handler) Buffer(id group.ID) []byte {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	b, ok := h.bufs[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.cur...)
}

// RemoveGroup drops the buffers of group id.
func (h *Handler) RemoveGroup(id group.ID) {
	h.bufMu.Lock()
	delete(h.bufs, id)
	h.bufMu.Unlock()
}

// initBuffers sizes the buffers of id to size bytes. Callers hold bufMu.
func (h *Handler) initBuffers(id group.ID, size int) *buffers {
	b, ok := h.bufs[id]
	if !ok {
		b = &buffers{cur: make([]byte, size), prev: make([]byte, size)}
		h.bufs[id] = b
		return b
	}
	if len(b.cur) != size {
		b.cur = resize(b.cur, size)
		b.prev = resize(b.prev, size)
	}
	return b
}

func resize(b []byte, size int) []byte {
	if size <= cap(b) {
		old := len(b)
		b = b[:size]
		if size > old {
			clear(b[old:])
		}
		return b
	}
	return append(b, make([]byte, size-len(b))...)
}

// SetBufferRange extracts the buffer behind rng for g. The previous
// extraction is kept.
func (h *Handler) SetBufferRange(cmd api.CommandList, g *group.Group, rng api.BufferRange) {
	if rng.Buffer == 0 {
		return
	}
	size := int(cmd.Device().ResourceDesc(rng.Buffer).BufferSize)
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	b := h.initBuffers(g.ID(), size)
	copy(b.prev, b.cur)
	h.copier.HostBuffer(cmd, g, b.cur, rng.Buffer)
}

// SetConstants stores push constant values for g. The previous extraction
// is kept.
func (h *Handler) SetConstants(g *group.Group, values []uint32) {
	if len(values) == 0 {
		return
	}
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	b := h.initBuffers(g.ID(), len(values)*ElementSize)
	copy(b.prev, b.cur)
	for i, v := range values {
		binary.LittleEndian.PutUint32(b.cur[i*ElementSize:], v)
	}
}

// ApplyValues writes the mapped values of g's extraction into the effect
// variables. Mappings that name an unknown source or reach past the end of
// the buffer are skipped.
func (h *Handler) ApplyValues(u Uniforms, g *group.Group) {
	if u == nil {
		return
	}
	h.bufMu.Lock()
	b, ok := h.bufs[g.ID()]
	if !ok {
		h.bufMu.Unlock()
		return
	}
	cur := append([]byte(nil), b.cur...)
	prev := append([]byte(nil), b.prev...)
	h.bufMu.Unlock()

	h.varMu.RLock()
	defer h.varMu.RUnlock()
	for name, m := range g.Vars {
		v, ok := h.vars[name]
		if !ok {
			continue
		}
		buf := cur
		if m.UsePrevious {
			buf = prev
		}
		end := uint64(m.Offset) + uint64(v.Type.Size())
		if end > uint64(len(buf)) {
			continue
		}
		setValues(u, v, buf[m.Offset:end])
	}
}

func setValues(u Uniforms, v *Variable, raw []byte) {
	n := v.Type.Len()
	switch {
	case v.Type.IsFloat():
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*ElementSize:]))
		}
		for _, h := range v.Handles {
			u.SetUniformFloat(h, vals)
		}
	case v.Type == TypeInt:
		vals := make([]int32, n)
		for i := range vals {
			vals[i] = int32(binary.LittleEndian.Uint32(raw[i*ElementSize:]))
		}
		for _, h := range v.Handles {
			u.SetUniformInt(h, vals)
		}
	default:
		vals := make([]uint32, n)
		for i := range vals {
			vals[i] = binary.LittleEndian.Uint32(raw[i*ElementSize:])
		}
		for _, h := range v.Handles {
			u.SetUniformUint(h, vals)
		}
	}
}

// UpdateConstants extracts the constants of every queued group not yet
// updated this frame and removes the groups that succeeded from queue.
func (h *Handler) UpdateConstants(cmd api.CommandList, b *state.Block, u Uniforms, tr Tracker, queue map[group.ID]*group.Group) {
	if u == nil {
		return
	}
	for id, g := range queue {
		if tr.ConstantsUpdated(id) {
			continue
		}
		var ok bool
		if g.ConstantPushMode {
			ok = h.updatePushConstants(b, u, tr, g)
		} else {
			ok = h.updateBufferConstants(cmd, b, u, tr, g)
		}
		if ok {
			delete(queue, id)
		}
	}
}

func (h *Handler) updateBufferConstants(cmd api.CommandList, b *state.Block, u Uniforms, tr Tracker, g *group.Group) bool {
	cycle := g.ConsumeCycle(group.CycleConstants)
	d, idx, ok := resolve.WalkDescriptor(b, g.ConstantStage, g.ConstantSlot, g.DescriptorIndex(group.CycleConstants), cycle, resolve.HasBuffer)
	if !ok {
		return false
	}
	if cycle != group.CycleNone {
		g.SetDescriptorIndex(group.CycleConstants, idx)
	}

	h.SetBufferRange(cmd, g, d.Range)
	h.ApplyValues(u, g)
	tr.MarkConstantsUpdated(g.ID())
	return true
}

// updatePushConstants reads push constants. Push mode never reads slot
// zero.
func (h *Handler) updatePushConstants(b *state.Block, u Uniforms, tr Tracker, g *group.Group) bool {
	stage := uint32(g.ConstantStage.Clamp())

	slot := min(int(g.ConstantSlot), b.RootTableSize(stage)-1)
	if slot <= 0 {
		return false
	}
	if b.RootTableEntrySize(stage, uint32(slot)) == 0 {
		return false
	}
	if values := b.ConstantsAt(stage, uint32(slot)); values != nil {
		h.SetConstants(g, values)
		h.ApplyValues(u, g)
		tr.MarkConstantsUpdated(g.ID())
	}
	return true
}
