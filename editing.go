package shadertoggle

import (
	"github.com/gogpu/shadertoggle/config"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
)

// StartEditing makes the group with id the edited group and starts hunting
// its shaders. The group's hashes start out marked. It reports false for
// an unknown id.
func (a *Addon) StartEditing(id group.ID) bool {
	g, ok := a.groups.Get(id)
	if !ok {
		return false
	}
	if cur, ok := a.groups.Editing(); ok && cur != g {
		a.EndEditing(false)
	}
	a.groups.SetEditing(id)
	hashes := g.Snapshot().Hashes
	for s, m := range a.shaders {
		m.StartHunting(hashes[s])
	}
	a.mu.RLock()
	frames := a.collectFrames
	a.mu.RUnlock()
	a.collector.Start(frames)
	logx.L().Info("shadertoggle: editing started", "group", g.Name, "collect_frames", frames)
	return true
}

// EndEditing stops hunting. With accept the marked shaders become the
// hashes of the edited group.
func (a *Addon) EndEditing(accept bool) {
	g, ok := a.groups.Editing()
	if !ok {
		return
	}
	if accept {
		var hashes [group.StageCount]group.HashSet
		for s, m := range a.shaders {
			hashes[s] = m.Marked()
		}
		a.groups.Update(g.ID(), func(g *group.Group) { g.StoreHashes(hashes) })
	}
	for _, m := range a.shaders {
		m.StopHunting()
	}
	a.collector.Start(0)
	a.groups.SetEditing(0)
	logx.L().Info("shadertoggle: editing ended", "group", g.Name, "accepted", accept)
}

// huntKeys are the hunting bindings of one stage.
type huntKeys struct {
	down, up, mark, markedDown, markedUp config.Keybind
}

var stageKeys = [...]struct {
	stage group.Stage
	keys  huntKeys
}{
	{group.StagePixel, huntKeys{config.PixelShaderDown, config.PixelShaderUp, config.PixelShaderMark, config.PixelShaderMarkedDown, config.PixelShaderMarkedUp}},
	{group.StageVertex, huntKeys{config.VertexShaderDown, config.VertexShaderUp, config.VertexShaderMark, config.VertexShaderMarkedDown, config.VertexShaderMarkedUp}},
}

// HandleKey applies the packed key combination key: toggle keys switch
// their groups and, while a group is edited, the hunting bindings step
// through shaders, mark them and cycle the group's invocation and
// descriptor indices. It reports whether key did anything.
func (a *Addon) HandleKey(key uint32) bool {
	if key == 0 {
		return false
	}
	handled := false
	for _, g := range a.groups.All() {
		if g.ToggleKey == key && !g.IsEditing() {
			active := g.ToggleActive()
			logx.L().Debug("shadertoggle: group toggled", "group", g.Name, "active", active)
			handled = true
		}
	}

	g, ok := a.groups.Editing()
	if !ok {
		return handled
	}
	a.mu.RLock()
	keys := a.keys
	a.mu.RUnlock()

	for _, sk := range stageKeys {
		m := a.shaders[sk.stage]
		switch key {
		case keys[sk.keys.down]:
			m.HuntPrevious(false)
		case keys[sk.keys.up]:
			m.HuntNext(false)
		case keys[sk.keys.markedDown]:
			m.HuntPrevious(true)
		case keys[sk.keys.markedUp]:
			m.HuntNext(true)
		case keys[sk.keys.mark]:
			m.ToggleMark()
		default:
			continue
		}
		handled = true
	}

	switch key {
	case keys[config.InvocationUp]:
		a.cycleInvocation(g, 1)
		handled = true
	case keys[config.InvocationDown]:
		a.cycleInvocation(g, group.CallSiteCount-1)
		handled = true
	case keys[config.DescriptorUp]:
		g.RequestCycle(group.CycleShaderResource, group.CycleUp)
		handled = true
	case keys[config.DescriptorDown]:
		g.RequestCycle(group.CycleShaderResource, group.CycleDown)
		handled = true
	}
	return handled
}

func (a *Addon) cycleInvocation(g *group.Group, step group.CallSite) {
	a.groups.Update(g.ID(), func(g *group.Group) {
		g.Invocation = (g.Invocation + step) % group.CallSiteCount
	})
}
