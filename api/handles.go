package api

// Opaque host handles. The zero value of every handle means "none".
type (
	ResourceHandle  uint64
	ResourceView    uint64
	Pipeline        uint64
	PipelineLayout  uint64
	DescriptorTable uint64
	DescriptorHeap  uint64
	Sampler         uint64
	Technique       uint64
	UniformVariable uint64
)

// DeviceAPI identifies the graphics API behind a device.
type DeviceAPI uint32

// Device APIs, numbered like the host's.
const (
	D3D9   DeviceAPI = 0x9000
	D3D10  DeviceAPI = 0xa000
	D3D11  DeviceAPI = 0xb000
	D3D12  DeviceAPI = 0xc000
	OpenGL DeviceAPI = 0x10000
	Vulkan DeviceAPI = 0x20000
)

// String returns the API name.
func (a DeviceAPI) String() string {
	switch a {
	case D3D9:
		return "d3d9"
	case D3D10:
		return "d3d10"
	case D3D11:
		return "d3d11"
	case D3D12:
		return "d3d12"
	case OpenGL:
		return "opengl"
	case Vulkan:
		return "vulkan"
	default:
		return "unknown"
	}
}

// FullRestore reports whether state must always be reissued after an
// injected draw. Explicit-descriptor APIs do not keep bindings across the
// host's own effect passes.
func (a DeviceAPI) FullRestore() bool {
	return a == D3D12 || a == Vulkan
}

// ExplicitDescriptors reports whether the API binds root tables through
// pipeline layouts rather than per-slot push descriptors.
func (a DeviceAPI) ExplicitDescriptors() bool {
	return a == D3D12 || a == Vulkan
}

// IsD3D reports whether the API is one of the Direct3D versions.
func (a DeviceAPI) IsD3D() bool {
	return a == D3D9 || a == D3D10 || a == D3D11 || a == D3D12
}
