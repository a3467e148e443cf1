package shadertoggle

import (
	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/dispatch"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/groupres"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/resolve"
	"github.com/gogpu/shadertoggle/technique"
)

// updateBindings updates the texture bindings queued at site for lanes.
// Every binding is updated at most once per frame.
func (d *Device) updateBindings(l *CommandList, site group.CallSite, lanes dispatch.Lanes) {
	l.queue.Mask.Clear(site, lanes)
	rt := d.runtime()
	if rt == nil {
		return
	}

	d.bindMu.Lock()
	defer d.bindMu.Unlock()

	res := l.resolver(resolve.KindBinding)
	var ready []group.ID
	for s := group.Stage(0); s < group.StageCount; s++ {
		if !lanes.Has(dispatch.Lane(dispatch.ActionBinding, s)) {
			continue
		}
		queue := l.queue.Stages[s].Bindings
		ready = dispatch.QueueOrDequeue(queue, site, res, ready[:0])
		for _, id := range ready {
			rd := queue[id]
			delete(queue, id)
			if d.BindingsUpdated(id) {
				continue
			}
			if d.updateBinding(l, rt, rd) {
				d.markBindingUpdated(id)
			}
		}
	}
}

// updateBinding points the texture semantic of rd's group at rd's
// resource, either directly or through a copy owned by the group. It
// reports whether the binding now shows the resource.
func (d *Device) updateBinding(l *CommandList, rt *Runtime, rd dispatch.RenderData) bool {
	g := rd.Group
	if !g.CopyTextureBinding {
		return d.borrowBinding(rt, rd)
	}

	id := g.ID()
	desc := d.dev.ResourceDesc(rd.Resource)
	cur := d.groupRes.Get(id, groupres.KindBinding)
	if !cur.Owning {
		if cur.Borrowed != 0 {
			d.views.Release(cur.Borrowed)
		}
		d.groupRes.Own(id, desc, rd.Format)
		cur = d.groupRes.Get(id, groupres.KindBinding)
	}

	if !d.groupRes.IsCompatible(id, groupres.KindBinding, rd.Resource) {
		d.groupRes.Invalidate(id, groupres.KindBinding, desc, rd.Format)
		if e := d.emptyBinding(); e.srv != 0 {
			rt.UpdateTextureBindings(g.TextureBindingName, e.srv, e.srv)
		}
		logx.L().Debug("shadertoggle: binding copy recreated at present", "group", g.Name, "width", desc.Size.Width, "height", desc.Size.Height)
		return false
	}
	if cur.State == groupres.StateRecreated || cur.State == groupres.StateCleared {
		rt.UpdateTextureBindings(g.TextureBindingName, cur.SRV, cur.SRV)
		d.groupRes.SetState(id, groupres.KindBinding, groupres.StateValid)
	}

	l.cmd.CopyResource(rd.Resource, cur.Res)
	if g.FlipBufferBinding && cur.RTV != 0 {
		if flip := rt.techs.Special(technique.Flip); flip != 0 {
			rt.RenderTechnique(flip, l.cmd, cur.RTV, cur.RTV)
		}
	}
	return true
}

// borrowBinding binds the views of the game resource itself.
func (d *Device) borrowBinding(rt *Runtime, rd dispatch.RenderData) bool {
	views, ok := d.views.Get(rd.Resource, rd.Format)
	if !ok || views.SRV == 0 {
		return false
	}
	g := rd.Group
	id := g.ID()
	cur := d.groupRes.Get(id, groupres.KindBinding)
	if !cur.Owning && cur.Borrowed == rd.Resource && cur.State != groupres.StateCleared {
		return true
	}

	rt.UpdateTextureBindings(g.TextureBindingName, views.SRV, views.SRVSRGB)
	d.views.Retain(rd.Resource)
	if !cur.Owning && cur.Borrowed != 0 {
		d.views.Release(cur.Borrowed)
	}
	d.groupRes.Borrow(id, rd.Resource, d.dev.ResourceDesc(rd.Resource), rd.Format)
	return true
}

// clearUnmatched binds the empty texture to the semantics of groups that
// clear their binding and were not updated this frame.
func (d *Device) clearUnmatched(rt *Runtime, cmd api.CommandList) {
	e := d.emptyBinding()
	for _, g := range d.addon.groups.All() {
		id := g.ID()
		if !g.ProvideTextureBinding || !groupres.ClearOnMiss(g, groupres.KindBinding) || d.BindingsUpdated(id) || e.srv == 0 {
			continue
		}
		if d.groupRes.Get(id, groupres.KindBinding).State == groupres.StateCleared {
			continue
		}
		rt.UpdateTextureBindings(g.TextureBindingName, e.srv, e.srv)

		var released api.ResourceHandle
		d.groupRes.Update(id, groupres.KindBinding, func(r *groupres.Resource) {
			r.State = groupres.StateCleared
			if !r.Owning {
				released, r.Borrowed = r.Borrowed, 0
			}
		})
		if released != 0 {
			d.views.Release(released)
		}
	}

	if _, ok := d.addon.groups.Editing(); ok {
		d.preview.ClearUnmatched(cmd)
	}
}
