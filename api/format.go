package api

import "github.com/gogpu/gputypes"

// Format is a texture or view format, numbered like DXGI_FORMAT with the
// host's extensions above 0x3000.
type Format uint32

// Formats referenced by the core.
const (
	FormatUnknown              Format = 0
	FormatR32G32B32A32Typeless Format = 1
	FormatR32G32B32A32Float    Format = 2
	FormatR32G32B32Typeless    Format = 5
	FormatR32G32B32Float       Format = 6
	FormatR16G16B16A16Typeless Format = 9
	FormatR16G16B16A16Float    Format = 10
	FormatR16G16B16A16Unorm    Format = 11
	FormatR10G10B10A2Typeless  Format = 23
	FormatR10G10B10A2Unorm     Format = 24
	FormatR11G11B10Float       Format = 26
	FormatR8G8B8A8Typeless     Format = 27
	FormatR8G8B8A8Unorm        Format = 28
	FormatR8G8B8A8UnormSRGB    Format = 29
	FormatR32Typeless          Format = 39
	FormatD32Float             Format = 40
	FormatR32Float             Format = 41
	FormatR32Uint              Format = 42
	FormatR32Sint              Format = 43
	FormatR24G8Typeless        Format = 44
	FormatD24UnormS8Uint       Format = 45
	FormatR8Unorm              Format = 61
	FormatB5G6R5Unorm          Format = 85
	FormatB5G5R5A1Unorm        Format = 86
	FormatB8G8R8A8Unorm        Format = 87
	FormatB8G8R8X8Unorm        Format = 88
	FormatR10G10B10XRBiasA2    Format = 89
	FormatB8G8R8A8Typeless     Format = 90
	FormatB8G8R8A8UnormSRGB    Format = 91
	FormatB8G8R8X8Typeless     Format = 92
	FormatB8G8R8X8UnormSRGB    Format = 93

	FormatR8G8B8X8Typeless    Format = 0x3027
	FormatR8G8B8X8Unorm       Format = 0x3028
	FormatR8G8B8X8UnormSRGB   Format = 0x3029
	FormatB5G5R5X1Unorm       Format = 0x3056
	FormatB10G10R10A2Typeless Format = 0x3093
	FormatB10G10R10A2Unorm    Format = 0x3094

	// FormatINTZ is the D3D9 depth format readable as a texture.
	FormatINTZ Format = 0x5a544e49
)

// IsColorBuffer reports whether f can back a color render target that
// effects may be rendered into.
func (f Format) IsColorBuffer() bool {
	switch f {
	case FormatB5G6R5Unorm,
		FormatB5G5R5A1Unorm,
		FormatB5G5R5X1Unorm,
		FormatR8G8B8A8Typeless, FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB,
		FormatR8G8B8X8Typeless, FormatR8G8B8X8Unorm, FormatR8G8B8X8UnormSRGB,
		FormatB8G8R8A8Typeless, FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB,
		FormatB8G8R8X8Typeless, FormatB8G8R8X8Unorm, FormatB8G8R8X8UnormSRGB,
		FormatR10G10B10A2Typeless, FormatR10G10B10A2Unorm, FormatR10G10B10XRBiasA2,
		FormatB10G10R10A2Typeless, FormatB10G10R10A2Unorm,
		FormatR11G11B10Float,
		FormatR16G16B16A16Typeless, FormatR16G16B16A16Float, FormatR16G16B16A16Unorm,
		FormatR32G32B32Typeless, FormatR32G32B32Float,
		FormatR32G32B32A32Typeless, FormatR32G32B32A32Float:
		return true
	}
	return false
}

// DefaultTyped returns the typed format used to view a possibly typeless
// resource. With srgb set the sRGB variant is returned where one exists.
func (f Format) DefaultTyped(srgb bool) Format {
	pick := func(linear, s Format) Format {
		if srgb {
			return s
		}
		return linear
	}
	switch f {
	case FormatR8G8B8A8Typeless, FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB:
		return pick(FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB)
	case FormatR8G8B8X8Typeless, FormatR8G8B8X8Unorm, FormatR8G8B8X8UnormSRGB:
		return pick(FormatR8G8B8X8Unorm, FormatR8G8B8X8UnormSRGB)
	case FormatB8G8R8A8Typeless, FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB:
		return pick(FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB)
	case FormatB8G8R8X8Typeless, FormatB8G8R8X8Unorm, FormatB8G8R8X8UnormSRGB:
		return pick(FormatB8G8R8X8Unorm, FormatB8G8R8X8UnormSRGB)
	case FormatR10G10B10A2Typeless:
		return FormatR10G10B10A2Unorm
	case FormatB10G10R10A2Typeless:
		return FormatB10G10R10A2Unorm
	case FormatR16G16B16A16Typeless:
		return FormatR16G16B16A16Float
	case FormatR32G32B32Typeless:
		return FormatR32G32B32Float
	case FormatR32G32B32A32Typeless:
		return FormatR32G32B32A32Float
	case FormatR32Typeless:
		return FormatR32Float
	case FormatR24G8Typeless:
		return FormatD24UnormS8Uint
	}
	return f
}

// TextureFormat maps f onto the WebGPU format of the same layout, or
// gputypes.TextureFormatUndefined when there is none.
func (f Format) TextureFormat() gputypes.TextureFormat {
	switch f.DefaultTyped(false) {
	case FormatR8G8B8A8Unorm, FormatR8G8B8X8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case FormatB8G8R8A8Unorm, FormatB8G8R8X8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	case FormatR8Unorm:
		return gputypes.TextureFormatR8Unorm
	case FormatD24UnormS8Uint:
		return gputypes.TextureFormatDepth24PlusStencil8
	}
	return gputypes.TextureFormatUndefined
}

// IsRenderTarget reports whether a texture of format f may be created with
// render target usage. Depth formats are excluded.
func (f Format) IsRenderTarget() bool {
	switch f {
	case FormatR8Unorm,
		FormatR32Typeless, FormatR32Float, FormatR32Uint, FormatR32Sint:
		return true
	}
	return f.IsColorBuffer()
}

// Typeless returns the typeless format of the family f belongs to, or f
// itself when the family has none.
func (f Format) Typeless() Format {
	switch f {
	case FormatR8G8B8A8Typeless, FormatR8G8B8A8Unorm, FormatR8G8B8A8UnormSRGB:
		return FormatR8G8B8A8Typeless
	case FormatR8G8B8X8Typeless, FormatR8G8B8X8Unorm, FormatR8G8B8X8UnormSRGB:
		return FormatR8G8B8X8Typeless
	case FormatB8G8R8A8Typeless, FormatB8G8R8A8Unorm, FormatB8G8R8A8UnormSRGB:
		return FormatB8G8R8A8Typeless
	case FormatB8G8R8X8Typeless, FormatB8G8R8X8Unorm, FormatB8G8R8X8UnormSRGB:
		return FormatB8G8R8X8Typeless
	case FormatR10G10B10A2Unorm:
		return FormatR10G10B10A2Typeless
	case FormatB10G10R10A2Unorm:
		return FormatB10G10R10A2Typeless
	case FormatR16G16B16A16Float, FormatR16G16B16A16Unorm:
		return FormatR16G16B16A16Typeless
	case FormatR32G32B32Float:
		return FormatR32G32B32Typeless
	case FormatR32G32B32A32Float:
		return FormatR32G32B32A32Typeless
	case FormatR32Float, FormatR32Uint, FormatR32Sint:
		return FormatR32Typeless
	}
	return f
}
