package shadertoggle

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/config"
	"github.com/gogpu/shadertoggle/constant"
	"github.com/gogpu/shadertoggle/descriptor"
	"github.com/gogpu/shadertoggle/dispatch"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/groupres"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/preview"
	"github.com/gogpu/shadertoggle/resolve"
	"github.com/gogpu/shadertoggle/state"
	"github.com/gogpu/shadertoggle/technique"
	"github.com/gogpu/shadertoggle/view"
)

// Runtime is an effect runtime together with its technique registry.
type Runtime struct {
	api.Runtime
	techs *technique.Registry
}

// Registry returns the technique registry of the runtime.
func (r *Runtime) Registry() *technique.Registry { return r.techs }

// CommandList is the per command list context: the state recorded from
// its bind calls and the actions queued on it.
type CommandList struct {
	dev   *Device
	cmd   api.CommandList
	block *state.Block
	queue *dispatch.List

	// generation is the device reload generation the queue belongs to.
	// Only the list's recording thread reads or writes it.
	generation uint64
}

// Queue returns the dispatch state of the list.
func (l *CommandList) Queue() *dispatch.List { return l.queue }

// Block returns the recorded state of the list.
func (l *CommandList) Block() *state.Block { return l.block }

func (l *CommandList) reset() {
	l.block.Clear()
	l.queue.Reset()
	l.generation = l.dev.generation.Load()
}

// sync drops the queued actions of l when the groups were reloaded since
// its last event.
func (l *CommandList) sync() {
	if gen := l.dev.generation.Load(); gen != l.generation {
		l.queue.Reset()
		l.generation = gen
	}
}

// resolver returns the resolver materializing resources of kind from the
// list's bound state.
func (l *CommandList) resolver(kind resolve.Kind) dispatch.Resolver {
	var screen resolve.Screen
	if rt := l.dev.runtime(); rt != nil {
		screen.Width, screen.Height = rt.ScreenshotSize()
	}
	return func(g *group.Group) resolve.Target {
		return resolve.Resolve(l.dev.dev, screen, l.block, g, kind)
	}
}

// emptyBinding is the texture bound to texture semantics that have nothing
// to show.
type emptyBinding struct {
	res api.ResourceHandle
	srv api.ResourceView
	rtv api.ResourceView
}

// Device is the per device context.
type Device struct {
	addon *Addon
	dev   api.Device

	tracker   *descriptor.Tracker
	blocks    *state.Registry
	views     *view.Cache
	groupRes  *groupres.Manager
	preview   *preview.Manager
	constants *constant.Handler

	listMu sync.Mutex
	lists  map[api.CommandList]*CommandList

	// generation counts group reloads. Lists compare it on their own
	// thread and reset their queues when it moved.
	generation atomic.Uint64

	rtMu     sync.RWMutex
	runtimes []*Runtime

	setMu            sync.Mutex
	bindingsUpdated  map[group.ID]bool
	constantsUpdated map[group.ID]bool

	renderedEffects atomic.Bool
	bindMu          sync.Mutex
	renderMu        sync.Mutex

	emptyMu sync.Mutex
	empty   emptyBinding
}

func newDevice(a *Addon, dev api.Device, general config.General) *Device {
	d := &Device{
		addon:            a,
		dev:              dev,
		blocks:           state.NewRegistry(),
		views:            view.NewCache(dev),
		groupRes:         groupres.NewManager(dev),
		preview:          preview.NewManager(dev),
		lists:            make(map[api.CommandList]*CommandList),
		bindingsUpdated:  make(map[group.ID]bool),
		constantsUpdated: make(map[group.ID]bool),
	}
	if general.TrackDescriptors {
		d.tracker = descriptor.NewTracker(dev)
	}

	copier, err := constant.NewCopier(general.ConstantCopyType, constant.Deps{Groups: d.groupRes})
	switch {
	case err != nil:
		logx.L().Warn("shadertoggle: constant extraction disabled", "copier", general.ConstantCopyType, "err", err)
	case copier.Name() != constant.CopierNone:
		d.constants = constant.NewHandler(copier)
	}

	logx.L().Info("shadertoggle: device initialized", "api", dev.API(), "track_descriptors", d.tracker != nil, "copier", general.ConstantCopyType)
	return d
}

// API returns the graphics API of the device.
func (d *Device) API() api.DeviceAPI { return d.dev.API() }

// Views returns the view cache of the device.
func (d *Device) Views() *view.Cache { return d.views }

// GroupResources returns the group resource manager of the device.
func (d *Device) GroupResources() *groupres.Manager { return d.groupRes }

// Preview returns the preview manager of the device.
func (d *Device) Preview() *preview.Manager { return d.preview }

// Constants returns the constant handler, or nil when extraction is off.
func (d *Device) Constants() *constant.Handler { return d.constants }

// Tracker returns the descriptor tracker, or nil when tracking is off.
func (d *Device) Tracker() *descriptor.Tracker { return d.tracker }

// list returns the context of cmd, creating it on first use. It must be
// called from the recording thread of cmd.
func (d *Device) list(cmd api.CommandList) *CommandList {
	d.listMu.Lock()
	l, ok := d.lists[cmd]
	if !ok {
		l = &CommandList{
			dev:        d,
			cmd:        cmd,
			block:      state.NewBlock(d.tracker),
			queue:      dispatch.NewList(),
			generation: d.generation.Load(),
		}
		d.lists[cmd] = l
		d.blocks.Add(l.block)
	}
	d.listMu.Unlock()
	l.sync()
	return l
}

// CommandList returns the context of cmd, or nil when unknown.
func (d *Device) CommandList(cmd api.CommandList) *CommandList {
	d.listMu.Lock()
	defer d.listMu.Unlock()
	return d.lists[cmd]
}

func (d *Device) forgetList(cmd api.CommandList) {
	d.listMu.Lock()
	l, ok := d.lists[cmd]
	delete(d.lists, cmd)
	d.listMu.Unlock()
	if ok {
		d.blocks.Remove(l.block)
	}
}

// invalidateLists makes every list drop its queued actions on its next
// event.
func (d *Device) invalidateLists() {
	d.generation.Add(1)
}

// runtime returns the most recently initialized effect runtime.
func (d *Device) runtime() *Runtime {
	d.rtMu.RLock()
	defer d.rtMu.RUnlock()
	if len(d.runtimes) == 0 {
		return nil
	}
	return d.runtimes[len(d.runtimes)-1]
}

// Runtime returns the context of rt, or nil when unknown.
func (d *Device) Runtime(rt api.Runtime) *Runtime {
	d.rtMu.RLock()
	defer d.rtMu.RUnlock()
	for _, r := range d.runtimes {
		if r.Runtime == rt {
			return r
		}
	}
	return nil
}

func (d *Device) effectsEnabled() (*Runtime, bool) {
	rt := d.runtime()
	return rt, rt != nil && rt.EffectsEnabled()
}

// ConstantsUpdated implements dispatch.Source and constant.Tracker.
func (d *Device) ConstantsUpdated(id group.ID) bool {
	d.setMu.Lock()
	defer d.setMu.Unlock()
	return d.constantsUpdated[id]
}

// MarkConstantsUpdated implements constant.Tracker.
func (d *Device) MarkConstantsUpdated(id group.ID) {
	d.setMu.Lock()
	d.constantsUpdated[id] = true
	d.setMu.Unlock()
}

// BindingsUpdated implements dispatch.Source.
func (d *Device) BindingsUpdated(id group.ID) bool {
	d.setMu.Lock()
	defer d.setMu.Unlock()
	return d.bindingsUpdated[id]
}

func (d *Device) markBindingUpdated(id group.ID) {
	d.setMu.Lock()
	d.bindingsUpdated[id] = true
	d.setMu.Unlock()
}

// PendingTechniques implements dispatch.Source.
func (d *Device) PendingTechniques(g *group.Group, dst []api.Technique) []api.Technique {
	rt := d.runtime()
	if rt == nil {
		return dst
	}
	return rt.techs.Pending(g, dst)
}

// PreviewPending implements dispatch.Source.
func (d *Device) PreviewPending(g *group.Group) bool {
	return g.IsEditing() && d.preview.Pending()
}

// PreviewUnresolved implements dispatch.Source.
func (d *Device) PreviewUnresolved(g *group.Group) bool {
	return d.PreviewPending(g) && d.preview.Unresolved()
}

// createEmptyBinding creates the texture bound in place of missing
// bindings, sized to the screenshot of rt.
func (d *Device) createEmptyBinding(rt api.Runtime) {
	d.emptyMu.Lock()
	defer d.emptyMu.Unlock()
	if d.empty.res != 0 {
		return
	}
	w, h := rt.ScreenshotSize()
	desc := api.TextureDesc(w, h, 1, api.FormatR8G8B8A8Unorm, api.HeapGPUOnly, api.UsageRenderTarget|api.UsageShaderResource|api.UsageCopyDest)
	res, ok := d.dev.CreateResource(desc, api.UsageShaderResource)
	if !ok {
		logx.L().Error("shadertoggle: create empty binding failed", "width", w, "height", h)
		return
	}
	d.empty.res = res
	vd := api.ResourceViewDesc{Format: api.FormatR8G8B8A8Unorm}
	if v, ok := d.dev.CreateResourceView(res, api.UsageShaderResource, vd); ok {
		d.empty.srv = v
	}
	if v, ok := d.dev.CreateResourceView(res, api.UsageRenderTarget, vd); ok {
		d.empty.rtv = v
	}
}

func (d *Device) emptyBinding() emptyBinding {
	d.emptyMu.Lock()
	defer d.emptyMu.Unlock()
	return d.empty
}

func (d *Device) disposeEmptyBinding() {
	d.emptyMu.Lock()
	defer d.emptyMu.Unlock()
	for _, v := range [...]api.ResourceView{d.empty.srv, d.empty.rtv} {
		if v != 0 {
			d.dev.DestroyResourceView(v)
		}
	}
	if d.empty.res != 0 {
		d.dev.DestroyResource(d.empty.res)
	}
	d.empty = emptyBinding{}
}

// removeGroup frees what the device holds for g.
func (d *Device) removeGroup(g *group.Group) {
	id := g.ID()
	if b := d.groupRes.Get(id, groupres.KindBinding); !b.Owning && b.Borrowed != 0 {
		d.views.Release(b.Borrowed)
	}
	d.groupRes.Dispose(id)
	if d.constants != nil {
		d.constants.RemoveGroup(id)
	}
	d.setMu.Lock()
	delete(d.bindingsUpdated, id)
	delete(d.constantsUpdated, id)
	d.setMu.Unlock()
}

func (d *Device) destroy() {
	d.groupRes.DisposeAll()
	d.disposeEmptyBinding()
	d.views.Clear()
	d.preview.Dispose()
	if d.tracker != nil {
		d.tracker.Reset()
	}
	logx.L().Info("shadertoggle: device destroyed", "api", d.dev.API())
}
