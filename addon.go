package shadertoggle

import (
	"sync"

	"github.com/gogpu/shadertoggle/api"
	"github.com/gogpu/shadertoggle/config"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
	"github.com/gogpu/shadertoggle/shader"
)

// shaderStages maps a group stage to the pipeline stage its shader is bound
// at.
var shaderStages = [group.StageCount]api.PipelineStage{
	group.StagePixel:   api.PipelineStagePixelShader,
	group.StageVertex:  api.PipelineStageVertexShader,
	group.StageCompute: api.PipelineStageComputeShader,
}

// Addon receives the events of a host and applies the toggle groups to
// them. It is safe for concurrent use.
//
// Groups and shader hashes are shared by every device. Everything that
// holds host resources lives in a per-device context created by
// OnInitDevice or on the first event that names the device.
type Addon struct {
	groups    *group.Store
	shaders   [group.StageCount]*shader.Manager
	collector shader.Collector

	mu            sync.RWMutex
	general       config.General
	keys          config.Keybindings
	collectFrames int
	devices       map[api.Device]*Device
}

// New creates an addon from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config) *Addon {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &Addon{
		groups:        group.NewStore(),
		collectFrames: shader.DefaultCollectFrames,
		devices:       make(map[api.Device]*Device),
	}
	for i := range a.shaders {
		a.shaders[i] = shader.NewManager()
	}
	a.general = cfg.General
	a.keys = cfg.Keybindings
	for _, s := range cfg.Groups {
		a.groups.Add(group.FromSettings(s))
	}
	logx.L().Info("shadertoggle: configuration applied", "groups", len(cfg.Groups), "copier", cfg.General.ConstantCopyType)
	return a
}

// Groups returns the group store.
func (a *Addon) Groups() *group.Store { return a.groups }

// Shaders returns the shader manager of stage.
func (a *Addon) Shaders(stage group.Stage) *shader.Manager {
	return a.shaders[stage.Clamp()]
}

// SetCollectFrames sets the length of the collection phase that starts
// with every hunt.
func (a *Addon) SetCollectFrames(n int) {
	a.mu.Lock()
	a.collectFrames = max(n, 1)
	a.mu.Unlock()
}

// Config returns the current configuration with a snapshot of every group.
func (a *Addon) Config() *config.Config {
	a.mu.RLock()
	c := &config.Config{General: a.general, Keybindings: a.keys}
	a.mu.RUnlock()
	for _, g := range a.groups.All() {
		c.Groups = append(c.Groups, g.Snapshot())
	}
	return c
}

// Reload replaces the groups and key bindings with those of cfg. The
// general section only affects devices initialized afterwards. Every
// command list drops its queued actions on its next event.
func (a *Addon) Reload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.EndEditing(false)
	for _, g := range a.groups.All() {
		a.RemoveGroup(g.ID())
	}
	for _, s := range cfg.Groups {
		a.groups.Add(group.FromSettings(s))
	}

	a.mu.Lock()
	a.general = cfg.General
	a.keys = cfg.Keybindings
	devices := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		devices = append(devices, d)
	}
	a.mu.Unlock()

	for _, d := range devices {
		d.invalidateLists()
	}
	logx.L().Info("shadertoggle: configuration reloaded", "groups", len(cfg.Groups))
}

// AddGroup adds a group built from s and returns it.
func (a *Addon) AddGroup(s group.Settings) *group.Group {
	g := group.FromSettings(s)
	a.groups.Add(g)
	return g
}

// RemoveGroup deactivates the group with id, frees its resources on every
// device and removes it. Actions already queued for it drain normally.
func (a *Addon) RemoveGroup(id group.ID) bool {
	g, ok := a.groups.Get(id)
	if !ok {
		return false
	}
	g.SetActive(false)
	if g.IsEditing() {
		a.EndEditing(false)
	}
	for _, d := range a.deviceList() {
		d.removeGroup(g)
	}
	return a.groups.Remove(id)
}

func (a *Addon) deviceList() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, d)
	}
	return out
}

// device returns the context of dev, creating it when the device was not
// announced through OnInitDevice.
func (a *Addon) device(dev api.Device) *Device {
	if dev == nil {
		return nil
	}
	a.mu.RLock()
	d, ok := a.devices[dev]
	a.mu.RUnlock()
	if ok {
		return d
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if d, ok := a.devices[dev]; ok {
		return d
	}
	d = newDevice(a, dev, a.general)
	a.devices[dev] = d
	return d
}

// list returns the contexts of cmd and its device.
func (a *Addon) list(cmd api.CommandList) (*Device, *CommandList) {
	if cmd == nil {
		return nil, nil
	}
	d := a.device(cmd.Device())
	if d == nil {
		return nil, nil
	}
	return d, d.list(cmd)
}

// Device returns the context of dev, or nil when the addon never saw it.
func (a *Addon) Device(dev api.Device) *Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.devices[dev]
}

// OnInitDevice creates the context of dev.
func (a *Addon) OnInitDevice(dev api.Device) {
	a.device(dev)
}

// OnDestroyDevice frees every resource created on dev and forgets it.
func (a *Addon) OnDestroyDevice(dev api.Device) {
	a.mu.Lock()
	d, ok := a.devices[dev]
	delete(a.devices, dev)
	a.mu.Unlock()
	if ok {
		d.destroy()
	}
}

// OnInitCommandList creates the context of cmd.
func (a *Addon) OnInitCommandList(cmd api.CommandList) {
	a.list(cmd)
}

// OnResetCommandList clears the recorded state and the queued actions of
// cmd.
func (a *Addon) OnResetCommandList(cmd api.CommandList) {
	if _, l := a.list(cmd); l != nil {
		l.reset()
	}
}

// OnDestroyCommandList forgets cmd.
func (a *Addon) OnDestroyCommandList(cmd api.CommandList) {
	if cmd == nil {
		return
	}
	if d := a.Device(cmd.Device()); d != nil {
		d.forgetList(cmd)
	}
}

// OnInitPipelineLayout records the parameters of layout for descriptor
// tracking.
func (a *Addon) OnInitPipelineLayout(dev api.Device, params []api.LayoutParam, layout api.PipelineLayout) {
	if d := a.device(dev); d != nil && d.tracker != nil {
		d.tracker.RegisterLayout(layout, params)
	}
}

// OnDestroyPipelineLayout forgets layout.
func (a *Addon) OnDestroyPipelineLayout(dev api.Device, layout api.PipelineLayout) {
	if d := a.device(dev); d != nil && d.tracker != nil {
		d.tracker.UnregisterLayout(layout)
	}
}

// OnInitPipeline hashes the shaders of a new pipeline and records which
// pipeline holds them.
func (a *Addon) OnInitPipeline(dev api.Device, layout api.PipelineLayout, subobjects []api.PipelineSubobject, p api.Pipeline) {
	for _, so := range subobjects {
		var stage group.Stage
		switch {
		case so.Stage.Has(api.ShaderStagePixel):
			stage = group.StagePixel
		case so.Stage.Has(api.ShaderStageVertex):
			stage = group.StageVertex
		case so.Stage.Has(api.ShaderStageCompute):
			stage = group.StageCompute
		default:
			continue
		}
		a.shaders[stage].Add(shader.Hash(so.Code), p)
	}
}

// OnDestroyPipeline forgets p in the shader managers and in the state of
// every command list of dev.
func (a *Addon) OnDestroyPipeline(dev api.Device, p api.Pipeline) {
	for _, m := range a.shaders {
		m.Remove(p)
	}
	if d := a.Device(dev); d != nil {
		d.blocks.OnDestroyPipeline(p)
	}
}
