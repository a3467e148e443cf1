package constant

import "github.com/gogpu/shadertoggle/api"

// Type is the shape of an effect variable fed from a constant buffer.
type Type uint8

// Variable types. Every element is four bytes.
const (
	TypeUnknown Type = iota
	TypeFloat
	TypeFloat2
	TypeFloat3
	TypeFloat4
	TypeFloat3x3
	TypeFloat4x3
	TypeFloat4x4
	TypeInt
	TypeUint
)

var typeInfo = [...]struct {
	name string
	len  int
}{
	TypeUnknown:  {"", 0},
	TypeFloat:    {"float", 1},
	TypeFloat2:   {"float2", 2},
	TypeFloat3:   {"float3", 3},
	TypeFloat4:   {"float4", 4},
	TypeFloat3x3: {"float3x3", 9},
	TypeFloat4x3: {"float4x3", 12},
	TypeFloat4x4: {"float4x4", 16},
	TypeInt:      {"int", 1},
	TypeUint:     {"uint", 1},
}

// ElementSize is the size in bytes of one element of any type.
const ElementSize = 4

func (t Type) String() string {
	if int(t) < len(typeInfo) {
		return typeInfo[t].name
	}
	return "unknown"
}

// Len returns the number of elements of t.
func (t Type) Len() int {
	if int(t) < len(typeInfo) {
		return typeInfo[t].len
	}
	return 0
}

// Size returns the size of t in bytes.
func (t Type) Size() int { return t.Len() * ElementSize }

// IsFloat reports whether t is one of the float types.
func (t Type) IsFloat() bool { return t >= TypeFloat && t <= TypeFloat4x4 }

// TypeOf returns the type of an effect uniform, or TypeUnknown for arrays
// and shapes that cannot be fed from a buffer.
func TypeOf(u api.UniformInfo) Type {
	if u.ArrayLength > 0 {
		return TypeUnknown
	}
	switch u.Base {
	case api.UniformFloat:
		switch {
		case u.Rows == 4 && u.Columns == 4:
			return TypeFloat4x4
		case u.Rows == 3 && u.Columns == 4:
			return TypeFloat4x3
		case u.Rows == 3 && u.Columns == 3:
			return TypeFloat3x3
		case u.Rows == 4 && u.Columns == 1:
			return TypeFloat4
		case u.Rows == 3 && u.Columns == 1:
			return TypeFloat3
		case u.Rows == 2 && u.Columns == 1:
			return TypeFloat2
		case u.Rows == 1 && u.Columns == 1:
			return TypeFloat
		}
	case api.UniformInt:
		if u.Rows <= 1 && u.Columns <= 1 {
			return TypeInt
		}
	case api.UniformUint:
		if u.Rows <= 1 && u.Columns <= 1 {
			return TypeUint
		}
	}
	return TypeUnknown
}
