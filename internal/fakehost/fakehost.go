// Package fakehost implements the api host interfaces in memory for tests
// and trace replay.
package fakehost

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/shadertoggle/api"
)

// TableLoc places a descriptor table inside a heap.
type TableLoc struct {
	Heap api.DescriptorHeap
	Base uint32
}

// View is a created or registered resource view.
type View struct {
	Resource api.ResourceHandle
	Format   api.Format
}

// Device is an in-memory api.Device.
type Device struct {
	mu sync.Mutex

	Kind      api.DeviceAPI
	Tables    map[api.DescriptorTable]TableLoc
	Views     map[api.ResourceView]View
	Resources map[api.ResourceHandle]api.ResourceDesc
	Memory    map[api.ResourceHandle][]byte
	Images    map[api.ResourceHandle]image.Image

	// FailCreate makes every Create call fail.
	FailCreate bool

	next             uint64
	Created          int
	Destroyed        int
	ViewsCreated     int
	ViewsDestroyed   int
	Mapped, Unmapped int
}

// NewDevice creates an empty device of the given API.
func NewDevice(kind api.DeviceAPI) *Device {
	return &Device{
		Kind:      kind,
		Tables:    make(map[api.DescriptorTable]TableLoc),
		Views:     make(map[api.ResourceView]View),
		Resources: make(map[api.ResourceHandle]api.ResourceDesc),
		Memory:    make(map[api.ResourceHandle][]byte),
		Images:    make(map[api.ResourceHandle]image.Image),
		next:      0x10000,
	}
}

func (d *Device) handle() uint64 {
	d.next += 0x10
	return d.next
}

// AddTexture registers a 2D texture and returns it with a view of format.
func (d *Device) AddTexture(width, height uint32, format api.Format) (api.ResourceHandle, api.ResourceView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := api.ResourceHandle(d.handle())
	d.Resources[res] = api.TextureDesc(width, height, 1, format, api.HeapGPUOnly, api.UsageRenderTarget|api.UsageShaderResource)
	view := api.ResourceView(d.handle())
	d.Views[view] = View{Resource: res, Format: format}
	return res, view
}

// AddBuffer registers a buffer backed by data.
func (d *Device) AddBuffer(data []byte, heap api.MemoryHeap) api.ResourceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := api.ResourceHandle(d.handle())
	d.Resources[res] = api.BufferDesc(uint64(len(data)), heap, api.UsageConstantBuffer)
	d.Memory[res] = append([]byte(nil), data...)
	return res
}

// AddTable registers a descriptor table at base inside heap.
func (d *Device) AddTable(table api.DescriptorTable, heap api.DescriptorHeap, base uint32) {
	d.mu.Lock()
	d.Tables[table] = TableLoc{Heap: heap, Base: base}
	d.mu.Unlock()
}

func (d *Device) API() api.DeviceAPI { return d.Kind }

func (d *Device) DescriptorHeapOffset(table api.DescriptorTable, binding, arrayOffset uint32) (api.DescriptorHeap, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	loc, ok := d.Tables[table]
	if !ok {
		// Unknown tables act as their own heap.
		return api.DescriptorHeap(table), binding + arrayOffset
	}
	return loc.Heap, loc.Base + binding + arrayOffset
}

func (d *Device) ResourceFromView(view api.ResourceView) api.ResourceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Views[view].Resource
}

func (d *Device) ResourceDesc(res api.ResourceHandle) api.ResourceDesc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Resources[res]
}

func (d *Device) ResourceViewDesc(view api.ResourceView) api.ResourceViewDesc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return api.ResourceViewDesc{Format: d.Views[view].Format}
}

func (d *Device) CreateResource(desc api.ResourceDesc, _ api.ResourceUsage) (api.ResourceHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreate {
		return 0, false
	}
	res := api.ResourceHandle(d.handle())
	d.Resources[res] = desc
	if desc.Type == api.ResourceTypeBuffer {
		d.Memory[res] = make([]byte, desc.BufferSize)
	}
	d.Created++
	return res, true
}

func (d *Device) DestroyResource(res api.ResourceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Resources, res)
	delete(d.Memory, res)
	d.Destroyed++
}

func (d *Device) CreateResourceView(res api.ResourceHandle, _ api.ResourceUsage, desc api.ResourceViewDesc) (api.ResourceView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreate {
		return 0, false
	}
	view := api.ResourceView(d.handle())
	d.Views[view] = View{Resource: res, Format: desc.Format}
	d.ViewsCreated++
	return view, true
}

func (d *Device) DestroyResourceView(view api.ResourceView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Views, view)
	d.ViewsDestroyed++
}

func (d *Device) MapBufferRegion(res api.ResourceHandle, offset, size uint64, _ api.MapAccess) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.Memory[res]
	if !ok || offset > uint64(len(mem)) {
		return nil, false
	}
	end := uint64(len(mem))
	if size != 0 && offset+size < end {
		end = offset + size
	}
	d.Mapped++
	return mem[offset:end], true
}

func (d *Device) UnmapBufferRegion(api.ResourceHandle) {
	d.mu.Lock()
	d.Unmapped++
	d.mu.Unlock()
}

// ReadTexture implements api.TextureReader.
func (d *Device) ReadTexture(res api.ResourceHandle) (image.Image, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.Images[res]
	return img, ok
}

// NativeBlock is a recorded native state block.
type NativeBlock struct {
	Captured, Applied, Released int
}

func (b *NativeBlock) Capture() { b.Captured++ }
func (b *NativeBlock) Apply()   { b.Applied++ }
func (b *NativeBlock) Release() { b.Released++ }

// StateBlockDevice is a Device with native state blocks (D3D9).
type StateBlockDevice struct {
	*Device
	Blocks []*NativeBlock
}

// CreateStateBlock implements api.StateBlockCreator.
func (d *StateBlockDevice) CreateStateBlock() (api.NativeStateBlock, bool) {
	b := &NativeBlock{}
	d.Blocks = append(d.Blocks, b)
	return b, true
}

// CommandList is an api.CommandList that records every call as a line of
// text in Calls.
type CommandList struct {
	Dev   api.Device
	Calls []string
}

// NewCommandList creates a command list recording against dev.
func NewCommandList(dev api.Device) *CommandList {
	return &CommandList{Dev: dev}
}

func (c *CommandList) record(format string, args ...any) {
	c.Calls = append(c.Calls, fmt.Sprintf(format, args...))
}

// Reset forgets recorded calls.
func (c *CommandList) Reset() { c.Calls = c.Calls[:0] }

func (c *CommandList) Device() api.Device { return c.Dev }

func (c *CommandList) BindRenderTargets(rtvs []api.ResourceView, dsv api.ResourceView) {
	c.record("rt %v %d", rtvs, dsv)
}

func (c *CommandList) BindPipeline(stages api.PipelineStage, p api.Pipeline) {
	c.record("pipeline %#x %d", uint32(stages), p)
}

func (c *CommandList) BindDynamicStates(states []api.DynamicState, values []uint32) {
	c.record("dynamic %v %v", states, values)
}

func (c *CommandList) BindViewports(first uint32, vps []api.Viewport) {
	c.record("viewports %d %d", first, len(vps))
}

func (c *CommandList) BindScissorRects(first uint32, rects []api.Rect) {
	c.record("scissors %d %d", first, len(rects))
}

func (c *CommandList) BindDescriptorTables(stages api.ShaderStage, layout api.PipelineLayout, first uint32, tables []api.DescriptorTable) {
	c.record("tables %#x %d %d %v", uint32(stages), layout, first, tables)
}

func (c *CommandList) PushConstants(stages api.ShaderStage, layout api.PipelineLayout, param, first uint32, values []uint32) {
	c.record("constants %#x %d %d %d %v", uint32(stages), layout, param, first, values)
}

func (c *CommandList) PushDescriptors(stages api.ShaderStage, layout api.PipelineLayout, param uint32, u api.TableUpdate) {
	c.record("descriptors %#x %d %d %d", uint32(stages), layout, param, len(u.Descriptors))
}

func (c *CommandList) CopyResource(src, dst api.ResourceHandle) {
	c.record("copy %d %d", src, dst)
	dev, ok := c.Dev.(*Device)
	if !ok {
		return
	}
	dev.mu.Lock()
	if mem, ok := dev.Memory[src]; ok {
		if out, ok := dev.Memory[dst]; ok {
			copy(out, mem)
		}
	}
	dev.mu.Unlock()
}

func (c *CommandList) ClearRenderTargetView(view api.ResourceView, color [4]float32) {
	c.record("clear %d %v", view, color)
}

// CopyTexture implements api.CopyShaders.
func (c *CommandList) CopyTexture(src, dst api.ResourceView, width, height uint32) {
	c.record("copy_texture %d %d %dx%d", src, dst, width, height)
}

// CopyResourceMaskAlpha implements api.CopyShaders.
func (c *CommandList) CopyResourceMaskAlpha(src, dst api.ResourceView, width, height uint32) {
	c.record("copy_mask_alpha %d %d %dx%d", src, dst, width, height)
}

// RenderCall is one RenderTechnique invocation.
type RenderCall struct {
	Technique api.Technique
	RTV       api.ResourceView
}

// Runtime is an in-memory api.Runtime.
type Runtime struct {
	Dev           api.Device
	Width, Height uint32
	Enabled       bool
	Back          api.ResourceHandle

	TechniqueList []api.TechniqueInfo
	Uniforms      []api.UniformInfo

	EffectPasses int
	Rendered     []RenderCall
	Bindings     map[string]api.ResourceView
	Floats       map[api.UniformVariable][]float32
	Ints         map[api.UniformVariable][]int32
	Uints        map[api.UniformVariable][]uint32
}

// NewRuntime creates a runtime with the given screenshot size.
func NewRuntime(dev api.Device, width, height uint32) *Runtime {
	return &Runtime{
		Dev:      dev,
		Width:    width,
		Height:   height,
		Enabled:  true,
		Bindings: make(map[string]api.ResourceView),
		Floats:   make(map[api.UniformVariable][]float32),
		Ints:     make(map[api.UniformVariable][]int32),
		Uints:    make(map[api.UniformVariable][]uint32),
	}
}

// AddTechnique registers an enabled or disabled technique.
func (r *Runtime) AddTechnique(name, effect string, enabled bool) api.Technique {
	h := api.Technique(len(r.TechniqueList) + 1)
	r.TechniqueList = append(r.TechniqueList, api.TechniqueInfo{Handle: h, Name: name, Effect: effect, Enabled: enabled})
	return h
}

func (r *Runtime) Device() api.Device { return r.Dev }

func (r *Runtime) ScreenshotSize() (uint32, uint32) { return r.Width, r.Height }

func (r *Runtime) EffectsEnabled() bool { return r.Enabled }

func (r *Runtime) BackBuffer() api.ResourceHandle { return r.Back }

func (r *Runtime) RenderEffects(api.CommandList, api.ResourceView, api.ResourceView) {
	r.EffectPasses++
}

func (r *Runtime) RenderTechnique(t api.Technique, _ api.CommandList, rtv, _ api.ResourceView) {
	r.Rendered = append(r.Rendered, RenderCall{Technique: t, RTV: rtv})
}

func (r *Runtime) UpdateTextureBindings(semantic string, srv, _ api.ResourceView) {
	r.Bindings[semantic] = srv
}

func (r *Runtime) Techniques() []api.TechniqueInfo { return r.TechniqueList }

func (r *Runtime) SetTechniqueState(t api.Technique, enabled bool) {
	for i := range r.TechniqueList {
		if r.TechniqueList[i].Handle == t {
			r.TechniqueList[i].Enabled = enabled
		}
	}
}

func (r *Runtime) UniformVariables() []api.UniformInfo { return r.Uniforms }

func (r *Runtime) SetUniformFloat(v api.UniformVariable, values []float32) {
	r.Floats[v] = append([]float32(nil), values...)
}

func (r *Runtime) SetUniformInt(v api.UniformVariable, values []int32) {
	r.Ints[v] = append([]int32(nil), values...)
}

func (r *Runtime) SetUniformUint(v api.UniformVariable, values []uint32) {
	r.Uints[v] = append([]uint32(nil), values...)
}
