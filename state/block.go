// Package state shadows the binding state of a command list.
//
// A Block records render targets, pipelines, dynamic state, viewports,
// scissors and the root tables of every shader stage, with snapshots of the
// descriptors and push constants behind them. The core reads it to resolve
// resources and replays it to restore the game's state after rendering
// effects in the middle of a command list.
//
// A Block belongs to one command list and is only touched by the thread
// recording that list, so it has no internal locking.
package state

import (
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/descriptor"
)

// EntryType is the kind of a root table entry.
type EntryType uint8

// Root entry kinds.
const (
	EntryUndefined EntryType = iota
	EntryDescriptorTable
	EntryPushConstants
	EntryPushDescriptors
)

// RootEntry is one layout parameter slot of a stage's root table. Buffer
// indexes the stage's descriptor or constant buffers and is -1 when the
// entry has no backing buffer.
type RootEntry struct {
	Type   EntryType
	Buffer int
	Table  api.DescriptorTable
}

var undefinedEntry = RootEntry{Type: EntryUndefined, Buffer: -1}

type rootTable struct {
	layout      api.PipelineLayout
	stages      api.ShaderStage
	entries     []RootEntry
	descriptors [][]api.Descriptor
	constants   [][]uint32
}

func (r *rootTable) reset() {
	r.layout = 0
	r.stages = 0
	r.entries = r.entries[:0]
	r.descriptors = r.descriptors[:0]
	r.constants = r.constants[:0]
}

// bind switches the table to layout. A different layout invalidates every
// entry and buffer recorded under the previous one.
func (r *rootTable) bind(layout api.PipelineLayout, stages api.ShaderStage) {
	if r.layout != layout {
		r.entries = r.entries[:0]
		r.descriptors = r.descriptors[:0]
		r.constants = r.constants[:0]
	}
	r.layout = layout
	r.stages = stages
}

func (r *rootTable) growTo(n int) {
	for len(r.entries) < n {
		r.entries = append(r.entries, undefinedEntry)
	}
}

type barrierTrack struct {
	usage    api.ResourceUsage
	refCount int
}

// Block is the shadowed state of one command list.
type Block struct {
	tracker *descriptor.Tracker

	renderTargets []api.ResourceView
	depthStencil  api.ResourceView

	pipelines      [PipelineStageCount]api.Pipeline
	pipelineStages [PipelineStageCount]api.PipelineStage

	topology        api.PrimitiveTopology
	blendConstant   uint32
	sampleMask      uint32
	frontStencilRef uint32
	backStencilRef  uint32

	viewports []api.Viewport
	scissors  []api.Rect

	tables [ShaderStageCount]rootTable

	barriers map[api.ResourceHandle]barrierTrack
	native   api.NativeStateBlock
}

// NewBlock creates an empty block. When tracker is nil descriptor tables
// are recorded by handle only and no descriptor snapshots are taken.
func NewBlock(tracker *descriptor.Tracker) *Block {
	b := &Block{tracker: tracker, barriers: make(map[api.ResourceHandle]barrierTrack)}
	b.Clear()
	return b
}

// Clear resets the block to the state of a freshly reset command list.
func (b *Block) Clear() {
	b.renderTargets = b.renderTargets[:0]
	b.depthStencil = 0
	b.topology = api.TopologyUndefined
	b.blendConstant = 0
	b.frontStencilRef = 0
	b.backStencilRef = 0
	b.sampleMask = 0xffffffff
	b.viewports = b.viewports[:0]
	b.scissors = b.scissors[:0]
	for i := range b.tables {
		b.tables[i].reset()
	}
	b.pipelines = [PipelineStageCount]api.Pipeline{}
	b.pipelineStages = [PipelineStageCount]api.PipelineStage{}
	clear(b.barriers)
}

// ClearPresent drops the render targets at the end of a frame.
func (b *Block) ClearPresent() {
	b.renderTargets = b.renderTargets[:0]
	b.depthStencil = 0
}

// OnBindRenderTargets replaces the bound render targets and depth stencil.
func (b *Block) OnBindRenderTargets(rtvs []api.ResourceView, dsv api.ResourceView) {
	b.renderTargets = append(b.renderTargets[:0], rtvs...)
	b.depthStencil = dsv
}

// OnBindPipeline records pipeline for the first stage in stages.
func (b *Block) OnBindPipeline(stages api.PipelineStage, pipeline api.Pipeline) {
	idx := PipelineStageIndex(stages)
	if idx < 0 {
		return
	}
	b.pipelines[idx] = pipeline
	b.pipelineStages[idx] = stages
}

// OnBindDynamicStates records topology, blend constant, stencil references
// and sample mask.
func (b *Block) OnBindDynamicStates(states []api.DynamicState, values []uint32) {
	for i, s := range states {
		if i >= len(values) {
			break
		}
		switch s {
		case api.DynamicStatePrimitiveTopology:
			b.topology = api.PrimitiveTopology(values[i])
		case api.DynamicStateBlendConstant:
			b.blendConstant = values[i]
		case api.DynamicStateFrontStencilReference:
			b.frontStencilRef = values[i]
		case api.DynamicStateBackStencilReference:
			b.backStencilRef = values[i]
		case api.DynamicStateSampleMask:
			b.sampleMask = values[i]
		}
	}
}

// OnBindViewports writes viewports starting at first.
func (b *Block) OnBindViewports(first uint32, viewports []api.Viewport) {
	end := int(first) + len(viewports)
	for len(b.viewports) < end {
		b.viewports = append(b.viewports, api.Viewport{})
	}
	copy(b.viewports[first:], viewports)
}

// OnBindScissors writes scissor rectangles starting at first.
func (b *Block) OnBindScissors(first uint32, rects []api.Rect) {
	end := int(first) + len(rects)
	for len(b.scissors) < end {
		b.scissors = append(b.scissors, api.Rect{})
	}
	copy(b.scissors[first:], rects)
}

// OnBindDescriptorTables records tables bound at slots first.. of the
// stage's root table and snapshots the descriptors they reference.
func (b *Block) OnBindDescriptorTables(dev api.Device, stages api.ShaderStage, layout api.PipelineLayout, first uint32, tables []api.DescriptorTable) {
	idx := ShaderStageIndex(stages)
	if idx < 0 {
		return
	}
	rt := &b.tables[idx]
	rt.bind(layout, stages)
	rt.growTo(int(first) + len(tables))

	for i, table := range tables {
		slot := int(first) + i
		if b.tracker == nil {
			rt.entries[slot] = RootEntry{Type: EntryDescriptorTable, Buffer: -1, Table: table}
			continue
		}

		param, ok := b.tracker.LayoutParam(layout, uint32(slot))
		if !ok || param.Type != api.LayoutParamDescriptorTable {
			continue
		}

		var size uint32
		for _, r := range param.Ranges {
			if r.Count != api.Unbounded && r.Type != api.DescriptorTypeSampler {
				size = max(size, r.Binding+r.Count)
			}
		}

		snapshot := make([]api.Descriptor, size)
		for _, r := range param.Ranges {
			if r.Count == api.Unbounded || r.Type == api.DescriptorTypeSampler {
				continue
			}
			heap, base := dev.DescriptorHeapOffset(table, r.Binding, 0)
			b.tracker.CopyRange(heap, base, r.Count, snapshot[r.Binding:])
		}

		rt.descriptors = append(rt.descriptors, snapshot)
		rt.entries[slot] = RootEntry{Type: EntryDescriptorTable, Buffer: len(rt.descriptors) - 1, Table: table}
	}
}

// OnPushDescriptors writes pushed descriptors into the buffer behind slot
// param, creating it on first use.
func (b *Block) OnPushDescriptors(stages api.ShaderStage, layout api.PipelineLayout, param uint32, update api.TableUpdate) {
	idx := ShaderStageIndex(stages)
	if idx < 0 {
		return
	}
	rt := &b.tables[idx]
	rt.bind(layout, stages)
	rt.growTo(int(param) + 1)

	end := int(update.Binding) + len(update.Descriptors)
	entry := &rt.entries[param]
	if entry.Type != EntryPushDescriptors {
		rt.descriptors = append(rt.descriptors, make([]api.Descriptor, end))
		*entry = RootEntry{Type: EntryPushDescriptors, Buffer: len(rt.descriptors) - 1}
	}
	buf := rt.descriptors[entry.Buffer]
	for len(buf) < end {
		buf = append(buf, api.Descriptor{})
	}
	fillDescriptors(buf, update)
	rt.descriptors[entry.Buffer] = buf
}

func fillDescriptors(buf []api.Descriptor, u api.TableUpdate) {
	for i, src := range u.Descriptors {
		d := &buf[int(u.Binding)+i]
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
}

// OnPushConstants writes values at first into the constant buffer behind
// slot param, creating it on first use.
func (b *Block) OnPushConstants(stages api.ShaderStage, layout api.PipelineLayout, param, first uint32, values []uint32) {
	idx := ShaderStageIndex(stages)
	if idx < 0 {
		return
	}
	rt := &b.tables[idx]
	rt.bind(layout, stages)
	rt.growTo(int(param) + 1)

	end := int(first) + len(values)
	entry := &rt.entries[param]
	if entry.Type != EntryPushConstants {
		rt.constants = append(rt.constants, make([]uint32, end))
		*entry = RootEntry{Type: EntryPushConstants, Buffer: len(rt.constants) - 1}
	}
	buf := rt.constants[entry.Buffer]
	for len(buf) < end {
		buf = append(buf, 0)
	}
	copy(buf[first:], values)
	rt.constants[entry.Buffer] = buf
}

func (b *Block) entry(stage, slot uint32) (*rootTable, RootEntry, bool) {
	if stage >= ShaderStageCount {
		return nil, undefinedEntry, false
	}
	rt := &b.tables[stage]
	if int(slot) >= len(rt.entries) {
		return rt, undefinedEntry, false
	}
	return rt, rt.entries[slot], true
}

// RootEntry returns the entry at slot of stage, or an undefined entry.
func (b *Block) RootEntry(stage, slot uint32) RootEntry {
	_, e, _ := b.entry(stage, slot)
	return e
}

// RootLayout returns the layout bound for stage.
func (b *Block) RootLayout(stage uint32) api.PipelineLayout {
	if stage >= ShaderStageCount {
		return 0
	}
	return b.tables[stage].layout
}

// DescriptorAt returns the descriptor at binding of the table or pushed
// descriptors at slot of stage.
func (b *Block) DescriptorAt(stage, slot, binding uint32) (api.Descriptor, bool) {
	rt, e, ok := b.entry(stage, slot)
	if !ok || e.Buffer < 0 || (e.Type != EntryDescriptorTable && e.Type != EntryPushDescriptors) {
		return api.Descriptor{}, false
	}
	buf := rt.descriptors[e.Buffer]
	if int(binding) >= len(buf) {
		return api.Descriptor{}, false
	}
	return buf[binding], true
}

// RootTableSize returns the number of slots in the root table of stage.
func (b *Block) RootTableSize(stage uint32) int {
	if stage >= ShaderStageCount {
		return 0
	}
	return len(b.tables[stage].entries)
}

// RootTableEntrySize returns the number of descriptors or constants behind
// slot of stage.
func (b *Block) RootTableEntrySize(stage, slot uint32) int {
	rt, e, ok := b.entry(stage, slot)
	if !ok || e.Buffer < 0 {
		return 0
	}
	switch e.Type {
	case EntryDescriptorTable, EntryPushDescriptors:
		return len(rt.descriptors[e.Buffer])
	case EntryPushConstants:
		return len(rt.constants[e.Buffer])
	}
	return 0
}

// ConstantsAt returns the push constants behind slot of stage, or nil.
func (b *Block) ConstantsAt(stage, slot uint32) []uint32 {
	rt, e, ok := b.entry(stage, slot)
	if !ok || e.Type != EntryPushConstants || e.Buffer < 0 {
		return nil
	}
	return rt.constants[e.Buffer]
}

// RenderTargets returns the bound render target views.
func (b *Block) RenderTargets() []api.ResourceView { return b.renderTargets }

// DepthStencil returns the bound depth stencil view.
func (b *Block) DepthStencil() api.ResourceView { return b.depthStencil }

// Pipeline returns the pipeline bound for the first stage in stages.
func (b *Block) Pipeline(stages api.PipelineStage) api.Pipeline {
	idx := PipelineStageIndex(stages)
	if idx < 0 {
		return 0
	}
	return b.pipelines[idx]
}

// Topology returns the bound primitive topology.
func (b *Block) Topology() api.PrimitiveTopology { return b.topology }

// SampleMask returns the bound sample mask.
func (b *Block) SampleMask() uint32 { return b.sampleMask }

// Viewports returns the bound viewports.
func (b *Block) Viewports() []api.Viewport { return b.viewports }

// Scissors returns the bound scissor rectangles.
func (b *Block) Scissors() []api.Rect { return b.scissors }

func (b *Block) forgetPipeline(p api.Pipeline) {
	for i := range b.pipelines {
		if b.pipelines[i] == p {
			b.pipelines[i] = 0
			b.pipelineStages[i] = 0
		}
	}
}

// StartBarrierTracking begins following the usage of res, or adds a
// reference if it is already followed.
func (b *Block) StartBarrierTracking(res api.ResourceHandle, usage api.ResourceUsage) {
	if t, ok := b.barriers[res]; ok {
		t.refCount++
		b.barriers[res] = t
		return
	}
	b.barriers[res] = barrierTrack{usage: usage, refCount: 1}
}

// StopBarrierTracking drops a reference to res and returns its last known
// usage.
func (b *Block) StopBarrierTracking(res api.ResourceHandle) api.ResourceUsage {
	t, ok := b.barriers[res]
	if !ok {
		return api.UsageUndefined
	}
	t.refCount--
	if t.refCount <= 0 {
		delete(b.barriers, res)
	} else {
		b.barriers[res] = t
	}
	return t.usage
}

// OnBarrier updates the usage of followed resources.
func (b *Block) OnBarrier(resources []api.ResourceHandle, newStates []api.ResourceUsage) {
	if len(b.barriers) == 0 {
		return
	}
	for i, res := range resources {
		if i >= len(newStates) {
			break
		}
		if t, ok := b.barriers[res]; ok {
			t.usage = newStates[i]
			b.barriers[res] = t
		}
	}
}
