package api

import "github.com/gogpu/gputypes"

// ResourceType is the dimensionality of a resource.
type ResourceType uint32

// Resource types.
const (
	ResourceTypeUnknown ResourceType = iota
	ResourceTypeBuffer
	ResourceTypeTexture1D
	ResourceTypeTexture2D
	ResourceTypeTexture3D
	ResourceTypeSurface
)

// ResourceUsage is a bit set of ways a resource may be used.
type ResourceUsage uint32

// Resource usage bits.
const (
	UsageUndefined       ResourceUsage = 0
	UsageVertexBuffer    ResourceUsage = 0x1
	UsageIndexBuffer     ResourceUsage = 0x2
	UsageRenderTarget    ResourceUsage = 0x4
	UsageUnorderedAccess ResourceUsage = 0x8
	UsageDepthStencil    ResourceUsage = 0x30
	UsageShaderResource  ResourceUsage = 0xc0
	UsageCopyDest        ResourceUsage = 0x400
	UsageCopySource      ResourceUsage = 0x800
	UsageConstantBuffer  ResourceUsage = 0x8000
)

// Has reports whether any bit of o is set in u.
func (u ResourceUsage) Has(o ResourceUsage) bool { return u&o != 0 }

// MemoryHeap is where a resource's memory lives.
type MemoryHeap uint32

// Memory heaps.
const (
	HeapUnknown MemoryHeap = iota
	HeapGPUOnly
	HeapCPUToGPU
	HeapGPUToCPU
	HeapCPUOnly
)

// ResourceDesc describes a resource. Textures use Size and Levels, buffers
// use BufferSize.
type ResourceDesc struct {
	Type       ResourceType
	Size       gputypes.Extent3D
	Levels     uint32
	Format     Format
	BufferSize uint64
	Heap       MemoryHeap
	Usage      ResourceUsage
}

// TextureDesc returns a 2D texture description.
func TextureDesc(width, height, levels uint32, format Format, heap MemoryHeap, usage ResourceUsage) ResourceDesc {
	return ResourceDesc{
		Type:   ResourceTypeTexture2D,
		Size:   gputypes.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		Levels: levels,
		Format: format,
		Heap:   heap,
		Usage:  usage,
	}
}

// BufferDesc returns a buffer description.
func BufferDesc(size uint64, heap MemoryHeap, usage ResourceUsage) ResourceDesc {
	return ResourceDesc{
		Type:       ResourceTypeBuffer,
		BufferSize: size,
		Heap:       heap,
		Usage:      usage,
	}
}

// ResourceViewDesc describes a view onto a resource.
type ResourceViewDesc struct {
	Format Format
}

// MapAccess is the CPU access requested when mapping a buffer.
type MapAccess uint32

// Map access modes.
const (
	MapReadOnly MapAccess = iota
	MapWriteOnly
	MapReadWrite
	MapWriteDiscard
)

// Writes reports whether a mapping with this access overwrites contents.
func (a MapAccess) Writes() bool { return a == MapWriteOnly || a == MapWriteDiscard }
