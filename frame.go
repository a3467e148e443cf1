package shadertoggle

import (
	"slices"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/technique"
)

// OnPresent renders the techniques no group claimed into the back buffer
// and, on APIs that do not need a full restore, clears the recorded state
// of cmd.
func (a *Addon) OnPresent(dev api.Device, cmd api.CommandList) {
	d := a.device(dev)
	if d == nil {
		return
	}
	if rt, ok := d.effectsEnabled(); ok && cmd != nil {
		d.renderRemaining(rt, cmd)
	}
	if cmd != nil && !dev.API().FullRestore() {
		a.OnResetCommandList(cmd)
	}
}

// OnReshadePresent finishes a frame of rt: resources that turned out unfit
// are recreated, bindings nothing updated are cleared and the per-frame
// bookkeeping starts over.
func (a *Addon) OnReshadePresent(rt api.Runtime, cmd api.CommandList, screenshot bool) {
	d := a.device(rt.Device())
	if d == nil {
		return
	}
	r := d.Runtime(rt)
	if r == nil {
		return
	}
	d.renderedEffects.Store(false)

	a.mu.RLock()
	prevent := a.general.PreventRuntimeReload
	a.mu.RUnlock()
	if prevent && cmd != nil {
		d.preventRuntimeReload(r, cmd)
	}

	if rt.EffectsEnabled() {
		if d.preview.Check() {
			logx.L().Debug("shadertoggle: preview textures recreated")
		}
		if n := d.groupRes.CheckGroups(a.groups.All()); n > 0 {
			logx.L().Debug("shadertoggle: group resources recreated", "count", n)
		}
		if cmd != nil {
			d.clearUnmatched(r, cmd)
		}
		d.views.CheckViews()
	}

	r.techs.OnPresent(rt, screenshot)

	d.setMu.Lock()
	clear(d.bindingsUpdated)
	clear(d.constantsUpdated)
	d.setMu.Unlock()
	d.preview.Reset()

	if a.collector.Tick() {
		logx.L().Info("shadertoggle: shader collection finished",
			"pixel", len(a.shaders[0].Collected()), "vertex", len(a.shaders[1].Collected()), "compute", len(a.shaders[2].Collected()))
	}

	if cmd != nil && !d.API().FullRestore() {
		if l := d.CommandList(cmd); l != nil {
			l.block.ClearPresent()
		}
	}
}

// OnReshadeBeginEffects saves the state of cmd before the host renders
// its own effects.
func (a *Addon) OnReshadeBeginEffects(rt api.Runtime, cmd api.CommandList) {
	if _, l := a.list(cmd); l != nil {
		l.block.Capture(cmd, true)
	}
}

// OnReshadeFinishEffects restores the state saved by OnReshadeBeginEffects.
func (a *Addon) OnReshadeFinishEffects(rt api.Runtime, cmd api.CommandList) {
	if _, l := a.list(cmd); l != nil {
		l.block.Apply(cmd, true)
	}
}

// OnInitEffectRuntime makes rt the current runtime of its device.
func (a *Addon) OnInitEffectRuntime(rt api.Runtime) {
	d := a.device(rt.Device())
	if d == nil {
		return
	}
	r := &Runtime{Runtime: rt, techs: technique.NewRegistry()}
	r.techs.Subscribe(func(ev technique.Event) {
		switch ev {
		case technique.EffectsReloading:
			if d.constants != nil {
				d.constants.ClearVariables()
			}
			d.views.SetReloading(true)
		case technique.EffectsReloaded:
			if d.constants != nil {
				d.constants.ReloadVariables(rt.UniformVariables())
			}
			d.views.SetReloading(false)
		}
	})

	d.rtMu.Lock()
	d.runtimes = append(d.runtimes, r)
	d.rtMu.Unlock()

	d.createEmptyBinding(rt)
	if d.constants != nil {
		d.constants.ReloadVariables(rt.UniformVariables())
	}
	r.techs.Reload(rt.Techniques())
	logx.L().Info("shadertoggle: effect runtime initialized", "techniques", r.techs.Len())
}

// OnDestroyEffectRuntime forgets rt. The previous runtime becomes current
// again.
func (a *Addon) OnDestroyEffectRuntime(rt api.Runtime) {
	d := a.Device(rt.Device())
	if d == nil {
		return
	}
	d.rtMu.Lock()
	d.runtimes = slices.DeleteFunc(d.runtimes, func(r *Runtime) bool { return r.Runtime == rt })
	d.rtMu.Unlock()

	if d.constants == nil {
		return
	}
	if top := d.runtime(); top != nil {
		d.constants.ReloadVariables(top.UniformVariables())
	} else {
		d.constants.ClearVariables()
	}
}

// OnReshadeReloadedEffects refreshes the techniques of rt after the host
// loaded its effects.
func (a *Addon) OnReshadeReloadedEffects(rt api.Runtime) {
	if r := a.runtimeOf(rt); r != nil {
		r.techs.Reload(rt.Techniques())
	}
}

// OnReshadeSetTechniqueState records a user toggle of technique t. It
// reports true when the toggle must be blocked.
func (a *Addon) OnReshadeSetTechniqueState(rt api.Runtime, t api.Technique, enabled bool) bool {
	r := a.runtimeOf(rt)
	if r == nil {
		return false
	}
	for _, info := range rt.Techniques() {
		if info.Handle == t {
			return r.techs.SetState(info, enabled)
		}
	}
	return false
}

// OnReshadeReorderTechniques rebuilds the render order after the user
// reordered techniques. It never blocks the reorder.
func (a *Addon) OnReshadeReorderTechniques(rt api.Runtime, order []api.Technique) bool {
	r := a.runtimeOf(rt)
	if r == nil {
		return false
	}
	infos := rt.Techniques()
	byHandle := make(map[api.Technique]api.TechniqueInfo, len(infos))
	for _, info := range infos {
		byHandle[info.Handle] = info
	}
	sorted := make([]api.TechniqueInfo, 0, len(order))
	for _, t := range order {
		if info, ok := byHandle[t]; ok {
			sorted = append(sorted, info)
		}
	}
	r.techs.Reorder(sorted)
	return false
}

func (a *Addon) runtimeOf(rt api.Runtime) *Runtime {
	d := a.Device(rt.Device())
	if d == nil {
		return nil
	}
	return d.Runtime(rt)
}
