package api

import (
	"fmt"
	"math"
)

// DescriptorType identifies what a descriptor holds.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeSamplerWithResourceView
	DescriptorTypeShaderResourceView
	DescriptorTypeUnorderedAccessView
	DescriptorTypeBufferShaderResourceView
	DescriptorTypeBufferUnorderedAccessView
	DescriptorTypeConstantBuffer
	DescriptorTypeShaderStorageBuffer
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeSampler:
		return "Sampler"
	case DescriptorTypeSamplerWithResourceView:
		return "SamplerWithResourceView"
	case DescriptorTypeShaderResourceView:
		return "ShaderResourceView"
	case DescriptorTypeUnorderedAccessView:
		return "UnorderedAccessView"
	case DescriptorTypeBufferShaderResourceView:
		return "BufferShaderResourceView"
	case DescriptorTypeBufferUnorderedAccessView:
		return "BufferUnorderedAccessView"
	case DescriptorTypeConstantBuffer:
		return "ConstantBuffer"
	case DescriptorTypeShaderStorageBuffer:
		return "ShaderStorageBuffer"
	}
	return fmt.Sprintf("%%!DescriptorType(%d)", uint32(t))
}

// BufferRange is a sub-range of a buffer resource.
type BufferRange struct {
	Buffer ResourceHandle
	Offset uint64
	Size   uint64
}

// Descriptor is the shadowed content of one descriptor slot. Type selects
// which of the payload fields are meaningful.
type Descriptor struct {
	Type    DescriptorType
	Sampler Sampler
	View    ResourceView
	Range   BufferRange
}

// IsZero reports whether d holds nothing.
func (d Descriptor) IsZero() bool {
	return d.Sampler == 0 && d.View == 0 && d.Range.Buffer == 0
}

// Unbounded marks a descriptor range whose size is set at bind time.
const Unbounded = math.MaxUint32

// DescriptorRange is one range of a descriptor-table layout parameter.
type DescriptorRange struct {
	Offset     uint32
	Binding    uint32
	Count      uint32
	Type       DescriptorType
	Visibility ShaderStage
}

// LayoutParamType identifies the kind of a pipeline layout parameter.
type LayoutParamType uint32

// Layout parameter kinds.
const (
	LayoutParamPushConstants LayoutParamType = iota
	LayoutParamDescriptorTable
	LayoutParamPushDescriptors
)

// PushConstantRange describes a push-constant layout parameter.
type PushConstantRange struct {
	Offset     uint32
	Binding    uint32
	Count      uint32
	Visibility ShaderStage
}

// LayoutParam is one parameter of a pipeline layout.
type LayoutParam struct {
	Type LayoutParamType
	// Ranges is set for descriptor tables.
	Ranges []DescriptorRange
	// PushConstants is set for push constants.
	PushConstants PushConstantRange
	// PushDescriptors is set for push descriptors.
	PushDescriptors DescriptorRange
}

// TableUpdate writes descriptors into a table.
type TableUpdate struct {
	Table       DescriptorTable
	Binding     uint32
	ArrayOffset uint32
	Type        DescriptorType
	Descriptors []Descriptor
}

// TableCopy copies descriptors between tables.
type TableCopy struct {
	Source            DescriptorTable
	SourceBinding     uint32
	SourceArrayOffset uint32
	Dest              DescriptorTable
	DestBinding       uint32
	DestArrayOffset   uint32
	Count             uint32
}
