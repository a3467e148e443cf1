package state

import "github.com/gogpu/shadertoggle/api"

// Number of shader and pipeline stage slots in a Block.
const (
	ShaderStageCount   = 6
	PipelineStageCount = 11
)

// shaderStageOrder maps a shader stage slot to its stage bit. Pixel, vertex
// and compute come first so their slot equals the group stage index.
var shaderStageOrder = [ShaderStageCount]api.ShaderStage{
	api.ShaderStagePixel,
	api.ShaderStageVertex,
	api.ShaderStageCompute,
	api.ShaderStageHull,
	api.ShaderStageGeometry,
	api.ShaderStageDomain,
}

var pipelineStageOrder = [PipelineStageCount]api.PipelineStage{
	api.PipelineStagePixelShader,
	api.PipelineStageVertexShader,
	api.PipelineStageComputeShader,
	api.PipelineStageDepthStencil,
	api.PipelineStageDomainShader,
	api.PipelineStageGeometryShader,
	api.PipelineStageHullShader,
	api.PipelineStageInputAssembler,
	api.PipelineStageOutputMerger,
	api.PipelineStageRasterizer,
	api.PipelineStageStreamOutput,
}

// ShaderStageIndex returns the slot of the first stage in stages, or -1.
func ShaderStageIndex(stages api.ShaderStage) int {
	for i, s := range shaderStageOrder {
		if stages.Has(s) {
			return i
		}
	}
	return -1
}

// PipelineStageIndex returns the slot of the first stage in stages, or -1.
func PipelineStageIndex(stages api.PipelineStage) int {
	for i, s := range pipelineStageOrder {
		if stages.Has(s) {
			return i
		}
	}
	return -1
}
