package api

// Viewport is a rasterizer viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// DynamicState identifies a piece of pipeline state settable on the
// command list.
type DynamicState uint32

// Dynamic states tracked by the core.
const (
	DynamicStatePrimitiveTopology DynamicState = iota + 1
	DynamicStateBlendConstant
	DynamicStateFrontStencilReference
	DynamicStateBackStencilReference
	DynamicStateSampleMask
)

// PrimitiveTopology is the host's primitive topology.
type PrimitiveTopology uint32

// Primitive topologies.
const (
	TopologyUndefined PrimitiveTopology = iota
	TopologyPointList
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
)

// IndirectCommand is the kind of an indirect draw or dispatch.
type IndirectCommand uint32

// Indirect command kinds.
const (
	IndirectUnknown IndirectCommand = iota
	IndirectDraw
	IndirectDrawIndexed
	IndirectDispatch
)
