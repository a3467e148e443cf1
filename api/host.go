package api

import (
	"image"
	"time"
)

// Device is the host's view of a graphics device.
type Device interface {
	API() DeviceAPI

	// DescriptorHeapOffset resolves a table reference to the heap that
	// backs it and the element offset inside that heap.
	DescriptorHeapOffset(table DescriptorTable, binding, arrayOffset uint32) (DescriptorHeap, uint32)

	ResourceFromView(view ResourceView) ResourceHandle
	ResourceDesc(res ResourceHandle) ResourceDesc
	ResourceViewDesc(view ResourceView) ResourceViewDesc

	CreateResource(desc ResourceDesc, initialUsage ResourceUsage) (ResourceHandle, bool)
	DestroyResource(res ResourceHandle)
	CreateResourceView(res ResourceHandle, usage ResourceUsage, desc ResourceViewDesc) (ResourceView, bool)
	DestroyResourceView(view ResourceView)

	// MapBufferRegion returns the mapped bytes of a buffer. The slice stays
	// valid until UnmapBufferRegion.
	MapBufferRegion(res ResourceHandle, offset, size uint64, access MapAccess) ([]byte, bool)
	UnmapBufferRegion(res ResourceHandle)
}

// NativeStateBlock is an API-native state block (D3D9).
type NativeStateBlock interface {
	Capture()
	Apply()
	Release()
}

// StateBlockCreator is implemented by devices that offer native state
// blocks.
type StateBlockCreator interface {
	CreateStateBlock() (NativeStateBlock, bool)
}

// TextureReader is implemented by devices that can read texture contents
// back to the CPU.
type TextureReader interface {
	ReadTexture(res ResourceHandle) (image.Image, bool)
}

// CommandList is a command list or immediate context being recorded.
type CommandList interface {
	Device() Device

	BindRenderTargets(rtvs []ResourceView, dsv ResourceView)
	BindPipeline(stages PipelineStage, pipeline Pipeline)
	BindDynamicStates(states []DynamicState, values []uint32)
	BindViewports(first uint32, viewports []Viewport)
	BindScissorRects(first uint32, rects []Rect)
	BindDescriptorTables(stages ShaderStage, layout PipelineLayout, first uint32, tables []DescriptorTable)
	PushConstants(stages ShaderStage, layout PipelineLayout, param, first uint32, values []uint32)
	PushDescriptors(stages ShaderStage, layout PipelineLayout, param uint32, update TableUpdate)

	CopyResource(src, dst ResourceHandle)
	ClearRenderTargetView(view ResourceView, color [4]float32)
}

// CopyShaders is implemented by command lists whose host ships the copy
// shaders used for alpha preservation and preview copies. Both draw a
// full-screen pass sampling src into dst and restore the list's state
// afterwards.
type CopyShaders interface {
	CopyTexture(src, dst ResourceView, width, height uint32)
	// CopyResourceMaskAlpha writes only the color channels of dst.
	CopyResourceMaskAlpha(src, dst ResourceView, width, height uint32)
}

// UniformBase is the scalar base type of an effect uniform.
type UniformBase uint32

// Uniform base types.
const (
	UniformFloat UniformBase = iota
	UniformInt
	UniformUint
	UniformBool
)

// UniformInfo describes an effect uniform variable.
type UniformInfo struct {
	Handle      UniformVariable
	Name        string
	Effect      string
	Source      string
	Base        UniformBase
	Rows        uint32
	Columns     uint32
	ArrayLength uint32
}

// TechniqueInfo describes an effect technique.
type TechniqueInfo struct {
	Handle  Technique
	Name    string
	Effect  string
	Enabled bool

	// HideInScreenshot is set by the technique's enabled_in_screenshot
	// annotation being false.
	HideInScreenshot bool
	// Timeout disables the technique that long after it was loaded. It is
	// read from the timeout annotation and ignored unless HasTimeout is set.
	Timeout    time.Duration
	HasTimeout bool
}

// Runtime is the host's effect runtime bound to a swap chain.
type Runtime interface {
	Device() Device

	ScreenshotSize() (width, height uint32)
	EffectsEnabled() bool
	BackBuffer() ResourceHandle

	RenderEffects(cmd CommandList, rtv, rtvSRGB ResourceView)
	RenderTechnique(t Technique, cmd CommandList, rtv, rtvSRGB ResourceView)
	UpdateTextureBindings(semantic string, srv, srvSRGB ResourceView)

	Techniques() []TechniqueInfo
	SetTechniqueState(t Technique, enabled bool)

	UniformVariables() []UniformInfo
	SetUniformFloat(v UniformVariable, values []float32)
	SetUniformInt(v UniformVariable, values []int32)
	SetUniformUint(v UniformVariable, values []uint32)
}
