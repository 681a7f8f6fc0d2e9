package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessorTypeClosedSet(t *testing.T) {
	cases := map[string]struct {
		want       AccessorType
		components int
	}{
		"SCALAR": {AccessorScalar, 1},
		"VEC2":   {AccessorVec2, 2},
		"VEC3":   {AccessorVec3, 3},
		"VEC4":   {AccessorVec4, 4},
		"MAT2":   {AccessorMat2, 4},
		"MAT3":   {AccessorMat3, 9},
		"MAT4":   {AccessorMat4, 16},
	}
	for name, tc := range cases {
		got, err := ParseAccessorType(name)
		require.NoError(t, err, name)
		assert.Equal(t, tc.want, got, name)
		assert.Equal(t, tc.components, got.Components(), name)
		assert.Equal(t, name, got.String())
	}

	for _, bad := range []string{"", "SCALAX", "scalar", "VEC1", "VEC5", "MAT5", "VECX", "MAX4", "VEC34", "VEC", "QUAT", "SCALARS"} {
		_, err := ParseAccessorType(bad)
		assert.ErrorIs(t, err, errUnknownAccessorType, bad)
	}
}

func TestParseComponentType(t *testing.T) {
	ct, err := ParseComponentType(5126)
	require.NoError(t, err)
	assert.Equal(t, ComponentFloat, ct)
	assert.Equal(t, 4, ct.Size())

	ct, err = ParseComponentType(5125)
	require.NoError(t, err)
	assert.Equal(t, ComponentUnsignedInt, ct)
	assert.Equal(t, 4, ct.Size())

	for code, size := range map[int]int{5120: 1, 5121: 1, 5122: 2, 5123: 2} {
		ct, err := ParseComponentType(code)
		require.NoError(t, err)
		assert.Equal(t, size, ct.Size())
	}

	for _, bad := range []int{0, 5124, 5127, 5130, -5126} {
		_, err := ParseComponentType(bad)
		assert.ErrorIs(t, err, errUnknownComponentType, bad)
	}
}

func TestAttributeSlotFor(t *testing.T) {
	for name, want := range map[string]AttributeSlot{"POSITION": 0, "NORMAL": 1, "TEXCOORD_0": 2} {
		slot, ok := AttributeSlotFor(name)
		assert.True(t, ok)
		assert.Equal(t, want, slot)
	}
	for _, name := range []string{"TEXCOORD_1", "COLOR_0", "TANGENT", "position", "JOINTS_0"} {
		_, ok := AttributeSlotFor(name)
		assert.False(t, ok, name)
	}
}

func TestParsePrimitiveModeAndTarget(t *testing.T) {
	m, err := parsePrimitiveMode(5)
	require.NoError(t, err)
	assert.Equal(t, ModeTriangleStrip, m)
	_, err = parsePrimitiveMode(7)
	assert.ErrorIs(t, err, errUnknownPrimitiveMode)

	tg, err := parseTarget(34963)
	require.NoError(t, err)
	assert.Equal(t, TargetElementArrayBuffer, tg)
	_, err = parseTarget(1)
	assert.ErrorIs(t, err, errUnknownTarget)
}

func TestDecodeErrorMessageAndMatching(t *testing.T) {
	err := structuralError(sectionAccessors, 2, "count", "required field missing")
	assert.Equal(t, "loader: accessors[2].count: structural: required field missing", err.Error())
	assert.ErrorIs(t, err, ErrParse)

	assert.ErrorIs(t, boundsError(sectionBufferViews, 0, "byteLength", "x"), ErrInvalidData)
	assert.ErrorIs(t, unsupportedError(sectionNodes, 1, "matrix", "x"), ErrUnsupported)
	assert.ErrorIs(t, resourceError(sectionBuffers, 0, "uri", assert.AnError), ErrCantOpen)
	assert.ErrorIs(t, resourceError(sectionBuffers, 0, "uri", assert.AnError), assert.AnError)

	assert.Equal(t, "loader: scene: bounds: x", boundsError(sectionScene, Absent, "", "x").Error())
}
