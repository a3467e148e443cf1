package shadertoggle

import (
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/dispatch"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/groupres"
	"github.com/gogpu/shadertoggle/preview"
	"github.com/gogpu/shadertoggle/resolve"
	"github.com/gogpu/shadertoggle/technique"
)

// updatePreview copies the target of the group under edit into the
// preview textures.
func (d *Device) updatePreview(l *CommandList, site group.CallSite, lanes dispatch.Lanes) {
	l.queue.Mask.Clear(site, lanes)
	g, ok := d.addon.groups.Editing()
	if !ok {
		return
	}
	rt := d.runtime()
	if rt == nil {
		return
	}
	invocation := g.Invocation
	if l.queue.Preview.Group == g {
		invocation = l.queue.Preview.Invocation
	}
	res := l.resolver(resolve.KindPreview)
	fx := preview.Techniques{
		Flip:       rt.techs.Special(technique.Flip),
		TonemapSDR: rt.techs.Special(technique.TonemapToSDR),
	}
	d.preview.Update(l.cmd, site, invocation, g, func() resolve.Target { return res(g) }, rt, fx)
}

// batch is a run of techniques rendered into the same target for one
// group.
type batch struct {
	group  *group.Group
	target dispatch.RenderData
	techs  []*technique.Effect
}

// renderEffects renders the effects queued at site for lanes. Techniques
// keep the runtime's order. Consecutive techniques of the same group share
// one pass over the target, framed by the group's flip and tonemap
// helpers.
func (d *Device) renderEffects(l *CommandList, site group.CallSite, lanes dispatch.Lanes) {
	l.queue.Mask.Clear(site, lanes)
	rt := d.runtime()
	if rt == nil {
		return
	}

	d.renderMu.Lock()
	defer d.renderMu.Unlock()

	res := l.resolver(resolve.KindEffect)
	var ready [group.StageCount][]api.Technique
	total := 0
	for s := group.Stage(0); s < group.StageCount; s++ {
		if !lanes.Has(dispatch.Lane(dispatch.ActionEffect, s)) {
			continue
		}
		ready[s] = dispatch.QueueOrDequeue(l.queue.Stages[s].Effects, site, res, nil)
		total += len(ready[s])
	}
	if total == 0 {
		return
	}

	if !d.renderedEffects.Swap(true) {
		rt.RenderEffects(l.cmd, 0, 0)
	}

	sorted := rt.techs.Sorted(nil)
	rendered := false
	for s := group.Stage(0); s < group.StageCount; s++ {
		if len(ready[s]) == 0 {
			continue
		}
		queue := l.queue.Stages[s].Effects
		for _, b := range batches(sorted, queue, ready[s]) {
			if d.renderBatch(l, rt, b) {
				rendered = true
			}
		}
		for _, t := range ready[s] {
			delete(queue, t)
		}
	}
	if rendered {
		l.block.Apply(l.cmd, false)
	}
}

// batches groups the ready techniques of queue in render order.
func batches(sorted []*technique.Effect, queue map[api.Technique]dispatch.RenderData, ready []api.Technique) []batch {
	isReady := make(map[api.Technique]bool, len(ready))
	for _, t := range ready {
		isReady[t] = true
	}
	var out []batch
	for _, e := range sorted {
		if !isReady[e.Handle] || !e.Enabled() || e.Rendered() {
			continue
		}
		rd := queue[e.Handle]
		if n := len(out); n > 0 && out[n-1].group == rd.Group && out[n-1].target.Resource == rd.Resource {
			out[n-1].techs = append(out[n-1].techs, e)
			continue
		}
		out = append(out, batch{group: rd.Group, target: rd, techs: []*technique.Effect{e}})
	}
	return out
}

// renderBatch renders b into its target. It reports whether anything was
// rendered.
func (d *Device) renderBatch(l *CommandList, rt *Runtime, b batch) bool {
	views, ok := d.views.Get(b.target.Resource, b.target.Format)
	if !ok || views.RTV == 0 {
		return false
	}
	g := b.group
	id := g.ID()
	rtv, rtvSRGB := views.RTV, views.RTVSRGB

	var alpha groupres.Resource
	preserve := false
	if g.PreserveAlpha {
		if d.groupRes.IsCompatible(id, groupres.KindAlpha, b.target.Resource) {
			alpha = d.groupRes.Get(id, groupres.KindAlpha)
			if alpha.RTV != 0 {
				l.cmd.CopyResource(b.target.Resource, alpha.Res)
				rtv, rtvSRGB = alpha.RTV, alpha.RTVSRGB
				preserve = true
			}
		} else {
			d.groupRes.Invalidate(id, groupres.KindAlpha, d.dev.ResourceDesc(b.target.Resource), b.target.Format)
		}
	}

	helper := func(s technique.Special) {
		if h := rt.techs.Special(s); h != 0 {
			rt.RenderTechnique(h, l.cmd, rtv, rtv)
		}
	}
	if g.FlipBuffer {
		helper(technique.Flip)
	}
	if g.Tonemap {
		helper(technique.TonemapToSDR)
	}
	for _, e := range b.techs {
		rt.RenderTechnique(e.Handle, l.cmd, rtv, rtvSRGB)
		e.MarkRendered()
	}
	if g.Tonemap {
		helper(technique.TonemapToHDR)
	}
	if g.FlipBuffer {
		helper(technique.Flip)
	}

	if preserve {
		if copier, ok := l.cmd.(api.CopyShaders); ok {
			desc := d.dev.ResourceDesc(b.target.Resource)
			copier.CopyResourceMaskAlpha(alpha.SRV, views.RTV, desc.Size.Width, desc.Size.Height)
		}
	}
	return true
}

// renderRemaining renders the enabled techniques no group rendered this
// frame into the back buffer. Nothing is rendered when no group rendered
// either, since the host then renders all effects itself.
func (d *Device) renderRemaining(rt *Runtime, cmd api.CommandList) {
	if !d.renderedEffects.Load() {
		return
	}
	views, ok := d.views.Get(rt.BackBuffer(), api.FormatUnknown)
	if !ok || views.RTV == 0 {
		return
	}
	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	for _, e := range rt.techs.Sorted(nil) {
		if !e.Enabled() || e.Rendered() {
			continue
		}
		rt.RenderTechnique(e.Handle, cmd, views.RTV, views.RTVSRGB)
		e.MarkRendered()
	}
}

// preventRuntimeReload renders the no-op technique so the host keeps its
// effects loaded even when no technique is enabled.
func (d *Device) preventRuntimeReload(rt *Runtime, cmd api.CommandList) {
	noop := rt.techs.Special(technique.Noop)
	if noop == 0 {
		return
	}
	if e := d.emptyBinding(); e.rtv != 0 {
		rt.RenderTechnique(noop, cmd, e.rtv, e.rtv)
	}
	if views, ok := d.views.Get(rt.BackBuffer(), api.FormatUnknown); ok && views.RTV != 0 {
		rt.RenderTechnique(noop, cmd, views.RTV, views.RTVSRGB)
	}
}
