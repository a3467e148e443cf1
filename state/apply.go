package state

import (
	"sync"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/internal/logx"
)

// Capture snapshots native state before an injected draw. Only D3D9 with
// force set uses a native state block; other APIs replay the shadow in
// Apply.
func (b *Block) Capture(cmd api.CommandList, force bool) {
	dev := cmd.Device()
	if !force || dev.API() != api.D3D9 || b.native != nil {
		return
	}
	creator, ok := dev.(api.StateBlockCreator)
	if !ok {
		return
	}
	native, ok := creator.CreateStateBlock()
	if !ok {
		logx.L().Warn("state: native state block creation failed")
		return
	}
	native.Capture()
	b.native = native
}

// Apply restores the recorded state on cmd. It does nothing unless force is
// set or the API needs full restoration after effects.
func (b *Block) Apply(cmd api.CommandList, force bool) {
	if cmd.Device().API() == api.D3D9 {
		b.applyD3D9(cmd, force)
		return
	}
	b.applyDefault(cmd, force)
}

func (b *Block) applyD3D9(cmd api.CommandList, force bool) {
	if !force {
		return
	}
	if len(b.renderTargets) > 0 || b.depthStencil != 0 {
		cmd.BindRenderTargets(b.renderTargets, b.depthStencil)
	}
	if b.native != nil {
		b.native.Apply()
		b.native.Release()
		b.native = nil
	}
}

func (b *Block) applyDefault(cmd api.CommandList, force bool) {
	kind := cmd.Device().API()
	if !force && !kind.FullRestore() {
		return
	}

	if len(b.renderTargets) > 0 || b.depthStencil != 0 {
		cmd.BindRenderTargets(b.renderTargets, b.depthStencil)
	}

	var set api.PipelineStage
	for i, stages := range b.pipelineStages {
		if stages|set > set {
			set |= stages
			cmd.BindPipeline(stages, b.pipelines[i])
		}
	}

	var states []api.DynamicState
	var values []uint32
	if b.topology != api.TopologyUndefined {
		states = append(states, api.DynamicStatePrimitiveTopology)
		values = append(values, uint32(b.topology))
	}
	if b.blendConstant != 0 {
		states = append(states, api.DynamicStateBlendConstant)
		values = append(values, b.blendConstant)
	}
	if b.sampleMask != 0xffffffff {
		states = append(states, api.DynamicStateSampleMask)
		values = append(values, b.sampleMask)
	}
	if b.frontStencilRef != 0 {
		states = append(states, api.DynamicStateFrontStencilReference)
		values = append(values, b.frontStencilRef)
	}
	if b.backStencilRef != 0 {
		states = append(states, api.DynamicStateBackStencilReference)
		values = append(values, b.backStencilRef)
	}
	if len(states) > 0 {
		cmd.BindDynamicStates(states, values)
	}

	if len(b.viewports) > 0 {
		cmd.BindViewports(0, b.viewports)
	}
	if len(b.scissors) > 0 {
		cmd.BindScissorRects(0, b.scissors)
	}

	if kind.ExplicitDescriptors() {
		b.applyRootTables(cmd)
	} else {
		b.applyPushDescriptors(cmd)
	}
}

// applyRootTables rebinds each stage's layout, then its tables, then its
// push constants. Stages sharing one root table are bound once.
func (b *Block) applyRootTables(cmd api.CommandList) {
	var set api.ShaderStage
	for i := range b.tables {
		rt := &b.tables[i]
		if rt.stages|set <= set {
			continue
		}
		set |= rt.stages
		if rt.layout == 0 {
			continue
		}

		cmd.BindDescriptorTables(rt.stages, rt.layout, 0, nil)
		for slot, e := range rt.entries {
			if e.Type == EntryDescriptorTable && e.Table != 0 {
				cmd.BindDescriptorTables(rt.stages, rt.layout, uint32(slot), []api.DescriptorTable{e.Table})
			}
		}
		for slot, e := range rt.entries {
			if e.Type == EntryPushConstants && e.Buffer >= 0 && len(rt.constants[e.Buffer]) > 0 {
				cmd.PushConstants(rt.stages, rt.layout, uint32(slot), 0, rt.constants[e.Buffer])
			}
		}
	}
}

// applyPushDescriptors restores the first two pushed pixel-stage slots,
// which is all the immediate-context APIs use.
func (b *Block) applyPushDescriptors(cmd api.CommandList) {
	rt := &b.tables[0]
	for slot := 0; slot < min(2, len(rt.entries)); slot++ {
		e := rt.entries[slot]
		if e.Type != EntryPushDescriptors || e.Buffer < 0 || len(rt.descriptors[e.Buffer]) == 0 {
			continue
		}
		d := rt.descriptors[e.Buffer][0]
		cmd.PushDescriptors(api.ShaderStagePixel, rt.layout, uint32(slot), api.TableUpdate{
			Type:        d.Type,
			Descriptors: []api.Descriptor{d},
		})
	}
}

// Registry follows the live blocks of a device so pipeline destruction can
// be reflected in every command list.
type Registry struct {
	mu     sync.RWMutex
	blocks map[*Block]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{blocks: make(map[*Block]struct{})}
}

// Add registers b.
func (r *Registry) Add(b *Block) {
	r.mu.Lock()
	r.blocks[b] = struct{}{}
	r.mu.Unlock()
}

// Remove unregisters b.
func (r *Registry) Remove(b *Block) {
	r.mu.Lock()
	delete(r.blocks, b)
	r.mu.Unlock()
}

// Len returns the number of registered blocks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

// OnDestroyPipeline clears p from every registered block.
func (r *Registry) OnDestroyPipeline(p api.Pipeline) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for b := range r.blocks {
		b.forgetPipeline(p)
	}
}
