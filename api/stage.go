package api

// ShaderStage is a bit set of shader stages.
type ShaderStage uint32

// Shader stage bits.
const (
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageHull     ShaderStage = 0x2
	ShaderStageDomain   ShaderStage = 0x4
	ShaderStageGeometry ShaderStage = 0x8
	ShaderStagePixel    ShaderStage = 0x10
	ShaderStageCompute  ShaderStage = 0x20

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageHull | ShaderStageDomain | ShaderStageGeometry | ShaderStagePixel
	ShaderStageAll         = ShaderStageAllGraphics | ShaderStageCompute
)

// Has reports whether any bit of o is set in s.
func (s ShaderStage) Has(o ShaderStage) bool { return s&o != 0 }

// PipelineStage is a bit set of pipeline stages.
type PipelineStage uint32

// Pipeline stage bits.
const (
	PipelineStageInputAssembler PipelineStage = 0x2
	PipelineStageStreamOutput   PipelineStage = 0x4
	PipelineStageVertexShader   PipelineStage = 0x8
	PipelineStageHullShader     PipelineStage = 0x10
	PipelineStageDomainShader   PipelineStage = 0x20
	PipelineStageGeometryShader PipelineStage = 0x40
	PipelineStagePixelShader    PipelineStage = 0x80
	PipelineStageRasterizer     PipelineStage = 0x100
	PipelineStageDepthStencil   PipelineStage = 0x200
	PipelineStageOutputMerger   PipelineStage = 0x400
	PipelineStageComputeShader  PipelineStage = 0x800

	PipelineStageAllGraphics = PipelineStage(0xfff) &^ PipelineStageComputeShader
	PipelineStageAll         = PipelineStage(0x7fffffff)
)

// Has reports whether any bit of o is set in p.
func (p PipelineStage) Has(o PipelineStage) bool { return p&o != 0 }

// PipelineSubobject is one shader stage of a pipeline being created.
type PipelineSubobject struct {
	Stage ShaderStage
	Code  []byte
}
