package shadertoggle

import (
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/dispatch"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/view"
)

// actionOrder is the order in which queued actions run at one call site.
// Previews read the target before effects change it and bindings are
// updated before effects sample them.
var actionOrder = [...]dispatch.ActionKind{dispatch.ActionPreview, dispatch.ActionBinding, dispatch.ActionEffect}

// run executes the actions of kind pending at site for lanes.
func (d *Device) run(l *CommandList, kind dispatch.ActionKind, site group.CallSite, lanes dispatch.Lanes) {
	switch kind {
	case dispatch.ActionPreview:
		d.updatePreview(l, site, lanes)
	case dispatch.ActionBinding:
		d.updateBindings(l, site, lanes)
	case dispatch.ActionEffect:
		d.renderEffects(l, site, lanes)
	}
}

// OnBindPipeline records the pipeline and, when it replaces a shader of a
// stage, runs the actions waiting for this bind and queues those of the
// groups blocking the new shaders.
func (a *Addon) OnBindPipeline(cmd api.CommandList, stages api.PipelineStage, p api.Pipeline) {
	d, l := a.list(cmd)
	if l == nil {
		return
	}
	l.block.OnBindPipeline(stages, p)

	const shaderBits = api.PipelineStagePixelShader | api.PipelineStageVertexShader | api.PipelineStageComputeShader
	if p == 0 || !stages.Has(shaderBits) {
		return
	}

	var hashes [group.StageCount]uint32
	found := false
	for s := range hashes {
		if stages.Has(pipelineStageOf(group.Stage(s))) {
			hashes[s] = a.shaders[s].HashOf(p)
			found = found || hashes[s] != 0
		}
	}
	if !found {
		return
	}
	if _, ok := d.effectsEnabled(); !ok {
		return
	}

	if a.collector.Active() {
		for s, h := range hashes {
			if h != 0 {
				a.shaders[s].Collect(p)
			}
		}
	}

	var changed dispatch.Lanes
	for s, h := range hashes {
		if h != 0 {
			changed |= l.queue.BindShader(group.Stage(s), h, a.groups)
		}
	}
	if changed == 0 {
		return
	}

	m := &l.queue.Mask
	for _, k := range actionOrder {
		lanes := changed & dispatch.KindLanes(k)
		if lanes != 0 && m.Has(group.CallBindPipeline, lanes) && !m.Has(group.CallDraw, lanes) {
			d.run(l, k, group.CallBindPipeline, lanes)
		}
	}

	l.queue.ClearForPipelineChange(changed)
	l.queue.CheckCall(d)
}

func pipelineStageOf(s group.Stage) api.PipelineStage {
	return shaderStages[s.Clamp()]
}

// OnBindRenderTargets records the targets, runs the actions waiting for a
// render target bind and requeues unresolved actions that asked for it.
func (a *Addon) OnBindRenderTargets(cmd api.CommandList, rtvs []api.ResourceView, dsv api.ResourceView) {
	d, l := a.list(cmd)
	if l == nil {
		return
	}
	l.block.OnBindRenderTargets(rtvs, dsv)
	if _, ok := d.effectsEnabled(); !ok {
		return
	}

	m := &l.queue.Mask
	for _, k := range actionOrder {
		lanes := dispatch.KindLanes(k)
		if m.Has(group.CallBindRenderTarget, lanes) && !m.Has(group.CallDraw, lanes) {
			d.run(l, k, group.CallBindRenderTarget, lanes)
		}
	}
	l.queue.Reschedule(d)
}

// OnBeginRenderPass records the targets of the pass and runs the draw site
// bindings and effects still pending for the graphics stages.
func (a *Addon) OnBeginRenderPass(cmd api.CommandList, rtvs []api.ResourceView, dsv api.ResourceView) {
	d, l := a.list(cmd)
	if l == nil {
		return
	}
	l.block.OnBindRenderTargets(rtvs, dsv)
	if _, ok := d.effectsEnabled(); !ok {
		return
	}

	graphics := dispatch.StageLanes(group.StagePixel) | dispatch.StageLanes(group.StageVertex)
	m := &l.queue.Mask
	for _, k := range [...]dispatch.ActionKind{dispatch.ActionBinding, dispatch.ActionEffect} {
		lanes := dispatch.KindLanes(k) & graphics
		if m.Has(group.CallDraw, lanes) {
			d.run(l, k, group.CallDraw, lanes)
		}
	}
}

// OnBindDescriptorTables records the tables bound to stages.
func (a *Addon) OnBindDescriptorTables(cmd api.CommandList, stages api.ShaderStage, layout api.PipelineLayout, first uint32, tables []api.DescriptorTable) {
	if d, l := a.list(cmd); l != nil {
		l.block.OnBindDescriptorTables(d.dev, stages, layout, first, tables)
	}
}

// OnPushDescriptors records descriptors pushed to a layout parameter.
func (a *Addon) OnPushDescriptors(cmd api.CommandList, stages api.ShaderStage, layout api.PipelineLayout, param uint32, update api.TableUpdate) {
	if _, l := a.list(cmd); l != nil {
		l.block.OnPushDescriptors(stages, layout, param, update)
	}
}

// OnPushConstants records constants pushed to a layout parameter.
func (a *Addon) OnPushConstants(cmd api.CommandList, stages api.ShaderStage, layout api.PipelineLayout, param, first uint32, values []uint32) {
	if _, l := a.list(cmd); l != nil {
		l.block.OnPushConstants(stages, layout, param, first, values)
	}
}

// OnBindViewports records viewports.
func (a *Addon) OnBindViewports(cmd api.CommandList, first uint32, viewports []api.Viewport) {
	if _, l := a.list(cmd); l != nil {
		l.block.OnBindViewports(first, viewports)
	}
}

// OnBindScissorRects records scissor rectangles.
func (a *Addon) OnBindScissorRects(cmd api.CommandList, first uint32, rects []api.Rect) {
	if _, l := a.list(cmd); l != nil {
		l.block.OnBindScissors(first, rects)
	}
}

// OnBindDynamicStates records dynamic pipeline state.
func (a *Addon) OnBindDynamicStates(cmd api.CommandList, states []api.DynamicState, values []uint32) {
	if _, l := a.list(cmd); l != nil {
		l.block.OnBindDynamicStates(states, values)
	}
}

// OnBarrier follows the state transitions of tracked resources.
func (a *Addon) OnBarrier(cmd api.CommandList, resources []api.ResourceHandle, newStates []api.ResourceUsage) {
	if _, l := a.list(cmd); l != nil {
		l.block.OnBarrier(resources, newStates)
	}
}

// OnCopyDescriptorTables mirrors descriptor copies into the tracker.
func (a *Addon) OnCopyDescriptorTables(dev api.Device, copies []api.TableCopy) {
	if d := a.device(dev); d != nil && d.tracker != nil {
		d.tracker.ApplyTableCopy(copies)
	}
}

// OnUpdateDescriptorTables mirrors descriptor writes into the tracker.
func (a *Addon) OnUpdateDescriptorTables(dev api.Device, updates []api.TableUpdate) {
	if d := a.device(dev); d != nil && d.tracker != nil {
		d.tracker.ApplyTableUpdate(updates)
	}
}

// OnCreateResource adjusts the description of a resource before the host
// creates it. It reports whether desc was changed.
func (a *Addon) OnCreateResource(dev api.Device, desc *api.ResourceDesc) bool {
	return view.PromoteRenderTarget(desc)
}

// OnInitResource lets the constant copier track host visible buffers.
func (a *Addon) OnInitResource(dev api.Device, desc api.ResourceDesc, initial []byte, res api.ResourceHandle) {
	if d := a.device(dev); d != nil && d.constants != nil {
		d.constants.Copier().OnInitResource(desc, initial, res)
	}
}

// OnDestroyResource invalidates the cached views of res.
func (a *Addon) OnDestroyResource(dev api.Device, res api.ResourceHandle) {
	d := a.device(dev)
	if d == nil {
		return
	}
	d.views.OnDestroyResource(res)
	if d.constants != nil {
		d.constants.Copier().OnDestroyResource(dev.ResourceDesc(res), res)
	}
}

// OnMapBufferRegion forwards a buffer mapping to the constant copier.
func (a *Addon) OnMapBufferRegion(dev api.Device, res api.ResourceHandle, offset, size uint64, access api.MapAccess, data uintptr) {
	if d := a.device(dev); d != nil && d.constants != nil {
		d.constants.Copier().OnMapBufferRegion(dev.ResourceDesc(res), res, offset, size, access, data)
	}
}

// OnUnmapBufferRegion forwards a buffer unmapping to the constant copier.
func (a *Addon) OnUnmapBufferRegion(dev api.Device, res api.ResourceHandle) {
	if d := a.device(dev); d != nil && d.constants != nil {
		d.constants.Copier().OnUnmapBufferRegion(dev.ResourceDesc(res), res)
	}
}

// OnMemcpy forwards a host write into mapped memory to the constant copier.
func (a *Addon) OnMemcpy(dev api.Device, dest uintptr, src []byte) {
	if d := a.device(dev); d != nil && d.constants != nil {
		d.constants.Copier().OnMemcpy(dest, src)
	}
}

// OnDraw runs the actions pending at the draw for the graphics stages. It
// reports whether the draw must be skipped.
func (a *Addon) OnDraw(cmd api.CommandList) bool {
	return a.checkDraw(cmd, dispatch.StageLanes(group.StagePixel)|dispatch.StageLanes(group.StageVertex))
}

// OnDrawIndexed is OnDraw for indexed draws.
func (a *Addon) OnDrawIndexed(cmd api.CommandList) bool {
	return a.OnDraw(cmd)
}

// OnDispatch runs the actions pending at the dispatch for the compute
// stage. It reports whether the dispatch must be skipped.
func (a *Addon) OnDispatch(cmd api.CommandList) bool {
	return a.checkDraw(cmd, dispatch.StageLanes(group.StageCompute))
}

// OnDrawOrDispatchIndirect is OnDraw or OnDispatch depending on typ. An
// unknown type covers every stage.
func (a *Addon) OnDrawOrDispatchIndirect(cmd api.CommandList, typ api.IndirectCommand) bool {
	switch typ {
	case api.IndirectDraw, api.IndirectDrawIndexed:
		return a.OnDraw(cmd)
	case api.IndirectDispatch:
		return a.OnDispatch(cmd)
	}
	return a.checkDraw(cmd, dispatch.AllLanes)
}

func (a *Addon) checkDraw(cmd api.CommandList, modifier dispatch.Lanes) bool {
	d, l := a.list(cmd)
	if l == nil {
		return false
	}

	m := &l.queue.Mask
	if m.Has(group.CallDraw, modifier) {
		rt, enabled := d.effectsEnabled()
		if enabled {
			if consts := dispatch.KindLanes(dispatch.ActionConstant) & modifier; d.constants != nil && m.Has(group.CallDraw, consts) {
				for s := group.Stage(0); s < group.StageCount; s++ {
					if consts.Has(dispatch.Lane(dispatch.ActionConstant, s)) {
						d.constants.UpdateConstants(cmd, l.block, rt, d, l.queue.Stages[s].Constants)
					}
				}
				m.Clear(group.CallDraw, consts)
			}
			for _, k := range actionOrder {
				lanes := dispatch.KindLanes(k) & modifier
				if m.Has(group.CallDraw, lanes) {
					d.run(l, k, group.CallDraw, lanes)
				}
			}
		}
	}

	for s := group.Stage(0); s < group.StageCount; s++ {
		if modifier.Has(dispatch.StageLanes(s)) && a.shaders[s].IsBlocked(l.queue.Stages[s].Hash) {
			return true
		}
	}
	return false
}
