// Package descriptor shadows descriptor heap contents and pipeline layout
// shapes for a device, so bound resources can be looked up without asking
// the driver.
//
// A Tracker is shared by all command lists of a device. Heaps are keyed by
// the host heap handle and only ever grow; layouts are keyed by layout
// handle. Queries for unknown handles return empty values.
package descriptor

import (
	"sync"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/internal/shard"
)

// heap is the shadow of one descriptor heap.
type heap struct {
	mu          sync.RWMutex
	descriptors []api.Descriptor
}

// growTo extends the heap to at least n entries. Caller holds mu.
func (h *heap) growTo(n int) {
	if n <= len(h.descriptors) {
		return
	}
	if n <= cap(h.descriptors) {
		h.descriptors = h.descriptors[:n]
		return
	}
	grown := make([]api.Descriptor, n, max(n, 2*cap(h.descriptors)))
	copy(grown, h.descriptors)
	h.descriptors = grown
}

// Tracker is the per-device descriptor shadow. It is safe for concurrent use.
type Tracker struct {
	device  api.Device
	heaps   *shard.Map[api.DescriptorHeap, *heap]
	layouts *shard.Map[api.PipelineLayout, []api.LayoutParam]
}

// NewTracker creates an empty tracker for device.
func NewTracker(device api.Device) *Tracker {
	return &Tracker{
		device:  device,
		heaps:   shard.New[api.DescriptorHeap, *heap](shard.HandleHasher[api.DescriptorHeap]),
		layouts: shard.New[api.PipelineLayout, []api.LayoutParam](shard.HandleHasher[api.PipelineLayout]),
	}
}

// RegisterLayout stores a copy of params for layout. Descriptor table
// ranges are copied as well, since the caller's slices may be transient.
func (t *Tracker) RegisterLayout(layout api.PipelineLayout, params []api.LayoutParam) {
	stored := make([]api.LayoutParam, len(params))
	for i, p := range params {
		stored[i] = p
		if p.Type == api.LayoutParamDescriptorTable {
			stored[i].Ranges = append([]api.DescriptorRange(nil), p.Ranges...)
		} else {
			stored[i].Ranges = nil
		}
	}
	t.layouts.Set(layout, stored)
	logx.L().Debug("descriptor: layout registered", "layout", uint64(layout), "params", len(params))
}

// UnregisterLayout forgets layout. Unknown layouts are ignored.
func (t *Tracker) UnregisterLayout(layout api.PipelineLayout) {
	t.layouts.Delete(layout)
}

// LayoutParam returns parameter index of layout.
func (t *Tracker) LayoutParam(layout api.PipelineLayout, index uint32) (api.LayoutParam, bool) {
	params, ok := t.layouts.Get(layout)
	if !ok || int(index) >= len(params) {
		return api.LayoutParam{}, false
	}
	return params[index], true
}

// Layout returns the parameters registered for layout. The slice is
// shared and must not be modified.
func (t *Tracker) Layout(layout api.PipelineLayout) ([]api.LayoutParam, bool) {
	return t.layouts.Get(layout)
}

// LayoutParamCount returns the number of parameters of layout, or 0.
func (t *Tracker) LayoutParamCount(layout api.PipelineLayout) int {
	params, _ := t.layouts.Get(layout)
	return len(params)
}

func (t *Tracker) heap(h api.DescriptorHeap) *heap {
	return t.heaps.GetOrCreate(h, func() *heap { return &heap{} })
}

// ApplyTableCopy mirrors descriptor table copies into the shadow. Source
// entries that were never written copy as empty descriptors.
func (t *Tracker) ApplyTableCopy(copies []api.TableCopy) {
	for _, c := range copies {
		srcHeap, srcOffset := t.device.DescriptorHeapOffset(c.Source, c.SourceBinding, c.SourceArrayOffset)
		dstHeap, dstOffset := t.device.DescriptorHeapOffset(c.Dest, c.DestBinding, c.DestArrayOffset)

		buf := make([]api.Descriptor, c.Count)
		t.CopyRange(srcHeap, srcOffset, c.Count, buf)

		dst := t.heap(dstHeap)
		dst.mu.Lock()
		dst.growTo(int(dstOffset) + int(c.Count))
		copy(dst.descriptors[dstOffset:], buf)
		dst.mu.Unlock()
	}
}

// ApplyTableUpdate mirrors descriptor table writes into the shadow. The
// update type selects which payload fields are stored.
func (t *Tracker) ApplyTableUpdate(updates []api.TableUpdate) {
	for _, u := range updates {
		h, offset := t.device.DescriptorHeapOffset(u.Table, u.Binding, u.ArrayOffset)

		dst := t.heap(h)
		dst.mu.Lock()
		dst.growTo(int(offset) + len(u.Descriptors))
		for k, src := range u.Descriptors {
			d := &dst.descriptors[int(offset)+k]
			d.Type = u.Type
			switch u.Type {
			case api.DescriptorTypeSampler:
				d.Sampler = src.Sampler
			case api.DescriptorTypeSamplerWithResourceView:
				d.Sampler = src.Sampler
				d.View = src.View
			case api.DescriptorTypeShaderResourceView, api.DescriptorTypeUnorderedAccessView:
				d.View = src.View
			case api.DescriptorTypeConstantBuffer, api.DescriptorTypeShaderStorageBuffer:
				d.Range = src.Range
			}
		}
		dst.mu.Unlock()
	}
}

// Descriptor returns the shadowed descriptor at (heap, offset).
func (t *Tracker) Descriptor(h api.DescriptorHeap, offset uint32) (api.Descriptor, bool) {
	hp, ok := t.heaps.Get(h)
	if !ok {
		return api.Descriptor{}, false
	}
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	if int(offset) >= len(hp.descriptors) {
		return api.Descriptor{}, false
	}
	return hp.descriptors[offset], true
}

// Sampler returns the sampler stored at (heap, offset), or 0.
func (t *Tracker) Sampler(h api.DescriptorHeap, offset uint32) api.Sampler {
	d, _ := t.Descriptor(h, offset)
	switch d.Type {
	case api.DescriptorTypeSampler, api.DescriptorTypeSamplerWithResourceView:
		return d.Sampler
	}
	return 0
}

// ShaderResourceView returns the view stored at (heap, offset), or 0.
func (t *Tracker) ShaderResourceView(h api.DescriptorHeap, offset uint32) api.ResourceView {
	d, _ := t.Descriptor(h, offset)
	switch d.Type {
	case api.DescriptorTypeShaderResourceView, api.DescriptorTypeSamplerWithResourceView:
		return d.View
	}
	return 0
}

// BufferRange returns the constant buffer range stored at (heap, offset).
func (t *Tracker) BufferRange(h api.DescriptorHeap, offset uint32) api.BufferRange {
	d, _ := t.Descriptor(h, offset)
	if d.Type == api.DescriptorTypeConstantBuffer {
		return d.Range
	}
	return api.BufferRange{}
}

// CopyRange copies up to count descriptors starting at (heap, offset) into
// dst and returns how many were copied. Entries past the end of the heap
// are left untouched in dst.
func (t *Tracker) CopyRange(h api.DescriptorHeap, offset, count uint32, dst []api.Descriptor) int {
	hp, ok := t.heaps.Get(h)
	if !ok {
		return 0
	}
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	end := min(int(offset)+int(count), len(hp.descriptors))
	if int(offset) >= end {
		return 0
	}
	return copy(dst, hp.descriptors[offset:end])
}

// HeapLen returns the number of shadowed entries in heap.
func (t *Tracker) HeapLen(h api.DescriptorHeap) int {
	hp, ok := t.heaps.Get(h)
	if !ok {
		return 0
	}
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return len(hp.descriptors)
}

// Reset drops all heaps and layouts.
func (t *Tracker) Reset() {
	t.heaps.Clear()
	t.layouts.Clear()
}
