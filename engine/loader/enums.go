package loader

import (
	"errors"
	"fmt"
)

var (
	errUnknownComponentType = errors.New("unknown component type")
	errUnknownAccessorType  = errors.New("unknown accessor type")
	errUnknownTarget        = errors.New("unknown buffer view target")
	errUnknownPrimitiveMode = errors.New("unknown primitive mode")
)

// Absent is the index value used for every optional cross reference that is not set.
const Absent = -1

// --- Component Types ---

// ComponentType is the scalar type of each accessor component, using the standard binary codes.
type ComponentType int

const (
	ComponentByte          ComponentType = 5120
	ComponentUnsignedByte  ComponentType = 5121
	ComponentShort         ComponentType = 5122
	ComponentUnsignedShort ComponentType = 5123
	ComponentUnsignedInt   ComponentType = 5125
	ComponentFloat         ComponentType = 5126
)

// ParseComponentType maps a numeric component-type code onto its ComponentType.
// Any code outside the closed set is an error, never a default.
//
// Parameters:
//   - code: the numeric code from the document
//
// Returns:
//   - ComponentType: the decoded component type
//   - error: errUnknownComponentType wrapped with the code
func ParseComponentType(code int) (ComponentType, error) {
	switch ComponentType(code) {
	case ComponentByte, ComponentUnsignedByte, ComponentShort, ComponentUnsignedShort,
		ComponentUnsignedInt, ComponentFloat:
		return ComponentType(code), nil
	default:
		return 0, fmt.Errorf("%w: %d", errUnknownComponentType, code)
	}
}

// Size returns the byte size of one component.
func (c ComponentType) Size() int {
	switch c {
	case ComponentByte, ComponentUnsignedByte:
		return 1
	case ComponentShort, ComponentUnsignedShort:
		return 2
	case ComponentUnsignedInt, ComponentFloat:
		return 4
	default:
		return 0
	}
}

func (c ComponentType) String() string {
	switch c {
	case ComponentByte:
		return "BYTE"
	case ComponentUnsignedByte:
		return "UNSIGNED_BYTE"
	case ComponentShort:
		return "SHORT"
	case ComponentUnsignedShort:
		return "UNSIGNED_SHORT"
	case ComponentUnsignedInt:
		return "UNSIGNED_INT"
	case ComponentFloat:
		return "FLOAT"
	default:
		return fmt.Sprintf("ComponentType(%d)", int(c))
	}
}

// --- Accessor Types ---

// AccessorType is the element shape of an accessor.
type AccessorType int

const (
	AccessorScalar AccessorType = iota + 1
	AccessorVec2
	AccessorVec3
	AccessorVec4
	AccessorMat2
	AccessorMat3
	AccessorMat4
)

// ParseAccessorType decodes one of the seven shape names. Length 6 can only be SCALAR; every
// other name is "VEC" or "MAT" followed by a single dimension digit.
//
// Parameters:
//   - s: the shape name from the document
//
// Returns:
//   - AccessorType: the decoded shape
//   - error: errUnknownAccessorType wrapped with the name
func ParseAccessorType(s string) (AccessorType, error) {
	switch len(s) {
	case 6:
		if s == "SCALAR" {
			return AccessorScalar, nil
		}
	case 4:
		dim := s[3]
		if dim < '2' || dim > '4' {
			break
		}
		switch s[:3] {
		case "VEC":
			return AccessorVec2 + AccessorType(dim-'2'), nil
		case "MAT":
			return AccessorMat2 + AccessorType(dim-'2'), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownAccessorType, s)
}

// Components returns the number of components per element.
func (t AccessorType) Components() int {
	switch t {
	case AccessorScalar:
		return 1
	case AccessorVec2:
		return 2
	case AccessorVec3:
		return 3
	case AccessorVec4, AccessorMat2:
		return 4
	case AccessorMat3:
		return 9
	case AccessorMat4:
		return 16
	default:
		return 0
	}
}

func (t AccessorType) String() string {
	switch t {
	case AccessorScalar:
		return "SCALAR"
	case AccessorVec2:
		return "VEC2"
	case AccessorVec3:
		return "VEC3"
	case AccessorVec4:
		return "VEC4"
	case AccessorMat2:
		return "MAT2"
	case AccessorMat3:
		return "MAT3"
	case AccessorMat4:
		return "MAT4"
	default:
		return fmt.Sprintf("AccessorType(%d)", int(t))
	}
}

// --- Buffer View Targets ---

// Target is the GPU binding a buffer view is intended for.
type Target int

const (
	TargetNone               Target = 0
	TargetArrayBuffer        Target = 34962
	TargetElementArrayBuffer Target = 34963
)

func parseTarget(code int) (Target, error) {
	switch Target(code) {
	case TargetArrayBuffer, TargetElementArrayBuffer:
		return Target(code), nil
	default:
		return TargetNone, fmt.Errorf("%w: %d", errUnknownTarget, code)
	}
}

// --- Primitive Modes ---

// PrimitiveMode is the topology of a mesh primitive.
type PrimitiveMode int

const (
	ModePoints PrimitiveMode = iota
	ModeLines
	ModeLineLoop
	ModeLineStrip
	ModeTriangles
	ModeTriangleStrip
	ModeTriangleFan
)

func parsePrimitiveMode(code int) (PrimitiveMode, error) {
	if code < int(ModePoints) || code > int(ModeTriangleFan) {
		return 0, fmt.Errorf("%w: %d", errUnknownPrimitiveMode, code)
	}
	return PrimitiveMode(code), nil
}

// --- Vertex Attribute Slots ---

// AttributeSlot is the vertex-buffer slot a primitive attribute is routed to.
type AttributeSlot int

const (
	SlotPosition AttributeSlot = iota
	SlotNormal
	SlotTexCoord0

	// NumAttributeSlots is the number of recognized attribute slots.
	NumAttributeSlots
)

// AttributeSlotFor maps an attribute semantic name onto its slot by exact match.
// Unrecognized names report false and are meant to be ignored.
//
// Parameters:
//   - name: the attribute semantic (e.g. "POSITION")
//
// Returns:
//   - AttributeSlot: the slot for the name
//   - bool: false if the name is not one of the routed semantics
func AttributeSlotFor(name string) (AttributeSlot, bool) {
	switch name {
	case "POSITION":
		return SlotPosition, true
	case "NORMAL":
		return SlotNormal, true
	case "TEXCOORD_0":
		return SlotTexCoord0, true
	default:
		return 0, false
	}
}

func (s AttributeSlot) String() string {
	switch s {
	case SlotPosition:
		return "POSITION"
	case SlotNormal:
		return "NORMAL"
	case SlotTexCoord0:
		return "TEXCOORD_0"
	default:
		return fmt.Sprintf("AttributeSlot(%d)", int(s))
	}
}

// --- Sampler Codes ---

// Filter is a texture filter code. Zero means the document left it unset.
type Filter int

const (
	FilterNearest              Filter = 9728
	FilterLinear               Filter = 9729
	FilterNearestMipmapNearest Filter = 9984
	FilterLinearMipmapNearest  Filter = 9985
	FilterNearestMipmapLinear  Filter = 9986
	FilterLinearMipmapLinear   Filter = 9987
)

// Wrap is a texture wrap code.
type Wrap int

const (
	WrapClampToEdge    Wrap = 33071
	WrapMirroredRepeat Wrap = 33648
	WrapRepeat         Wrap = 10497
)
