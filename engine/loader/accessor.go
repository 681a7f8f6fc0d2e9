package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// decodeAccessor turns one accessors[] element into an Accessor. It is pure value decoding:
// cross references and byte ranges are checked later, once buffers are loaded.
//
// Parameters:
//   - index: the element index, used for error locations
//   - raw: the element's JSON
//
// Returns:
//   - Accessor: the decoded accessor
//   - error: a *DecodeError naming the failing field
func decodeAccessor(index int, raw json.RawMessage) (Accessor, error) {
	var w gltfAccessor
	if err := decodeElement(sectionAccessors, index, raw, &w); err != nil {
		return Accessor{}, err
	}

	if w.Sparse != nil {
		return Accessor{}, unsupportedError(sectionAccessors, index, "sparse", "sparse accessors are not supported")
	}
	if w.BufferView == nil {
		return Accessor{}, unsupportedError(sectionAccessors, index, "bufferView", "accessors without a buffer view are not supported")
	}
	if w.Count == nil {
		return Accessor{}, structuralError(sectionAccessors, index, "count", "required field missing")
	}
	if *w.Count < 1 {
		return Accessor{}, structuralError(sectionAccessors, index, "count", "must be >= 1, got %d", *w.Count)
	}
	if w.ComponentType == nil {
		return Accessor{}, structuralError(sectionAccessors, index, "componentType", "required field missing")
	}
	if w.Type == nil {
		return Accessor{}, structuralError(sectionAccessors, index, "type", "required field missing")
	}
	if w.ByteOffset < 0 {
		return Accessor{}, structuralError(sectionAccessors, index, "byteOffset", "must be >= 0, got %d", w.ByteOffset)
	}

	ct, err := ParseComponentType(*w.ComponentType)
	if err != nil {
		return Accessor{}, newDecodeError(KindStructural, sectionAccessors, index, "componentType", err)
	}
	at, err := ParseAccessorType(*w.Type)
	if err != nil {
		return Accessor{}, newDecodeError(KindStructural, sectionAccessors, index, "type", err)
	}

	acc := Accessor{
		Name:          w.Name,
		BufferView:    *w.BufferView,
		ByteOffset:    w.ByteOffset,
		ComponentType: ct,
		Type:          at,
		Count:         *w.Count,
		Normalized:    w.Normalized,
	}

	if acc.MinCount, err = copyBounds(&acc.Min, w.Min, at); err != nil {
		return Accessor{}, newDecodeError(KindStructural, sectionAccessors, index, "min", err)
	}
	if acc.MaxCount, err = copyBounds(&acc.Max, w.Max, at); err != nil {
		return Accessor{}, newDecodeError(KindStructural, sectionAccessors, index, "max", err)
	}
	return acc, nil
}

// copyBounds copies a min/max array into its fixed 16-slot storage. A present array must hold
// exactly one value per component.
func copyBounds(dst *[16]float64, src []float64, at AccessorType) (int, error) {
	if src == nil {
		return 0, nil
	}
	if len(src) != at.Components() {
		return 0, fmt.Errorf("has %d values, %s needs %d", len(src), at, at.Components())
	}
	return copy(dst[:], src), nil
}

// checkAccessorBounds verifies that every element of acc lies inside its buffer view.
func checkAccessorBounds(index int, acc *Accessor, views []BufferView) error {
	if acc.BufferView < 0 || acc.BufferView >= len(views) {
		return boundsError(sectionAccessors, index, "bufferView", "index %d out of range [0,%d)", acc.BufferView, len(views))
	}
	view := &views[acc.BufferView]
	elem := acc.ElementSize()
	stride := elem
	if view.ByteStride != 0 {
		if view.ByteStride < elem {
			return boundsError(sectionAccessors, index, "bufferView",
				"stride %d of bufferView %d is smaller than the %d-byte element", view.ByteStride, acc.BufferView, elem)
		}
		stride = view.ByteStride
	}

	if acc.ByteOffset < 0 || acc.ByteOffset > view.ByteLength-elem {
		return boundsError(sectionAccessors, index, "byteOffset",
			"offset %d leaves no room for a %d-byte element in bufferView %d (%d bytes)", acc.ByteOffset, elem, acc.BufferView, view.ByteLength)
	}
	if !elementsFit(acc.Count, acc.ByteOffset, elem, stride, view.ByteLength) {
		return boundsError(sectionAccessors, index, "count",
			"%d elements at offset %d overrun bufferView %d (%d bytes)", acc.Count, acc.ByteOffset, acc.BufferView, view.ByteLength)
	}
	return nil
}

// elementsFit reports whether count elements of elem bytes, stride bytes apart and starting at
// offset, fit in length bytes. It divides instead of multiplying so huge counts cannot wrap.
func elementsFit(count, offset, elem, stride, length int) bool {
	if count < 1 || elem <= 0 || stride <= 0 || offset < 0 || offset > length-elem {
		return false
	}
	// the last element starts at offset+(count-1)*stride and spans elem bytes
	return count-1 <= (length-offset-elem)/stride
}

// --- Accessor Data Reading ---

// ReadAccessor returns the elements of accessor i as a tightly packed copy, with any buffer
// view stride removed.
//
// Parameters:
//   - i: the accessor index
//
// Returns:
//   - []byte: Count*ElementSize bytes
//   - error: ErrInvalidData if the accessor cannot be resolved
func (a *Asset) ReadAccessor(i int) ([]byte, error) {
	acc, err := lookup(a.accessors, "accessor", i)
	if err != nil {
		return nil, err
	}
	view, err := lookup(a.bufferViews, "bufferView", acc.BufferView)
	if err != nil {
		return nil, err
	}
	data, err := resolveRange(a.buffers, view.Buffer, view.ByteOffset, view.ByteLength)
	if err != nil {
		return nil, err
	}

	elem := acc.ElementSize()
	stride := elem
	if view.ByteStride > 0 {
		stride = view.ByteStride
	}

	if !elementsFit(acc.Count, acc.ByteOffset, elem, stride, len(data)) {
		return nil, fmt.Errorf("%w: accessor %d overruns its buffer view", ErrInvalidData, i)
	}

	result := make([]byte, acc.Count*elem)
	for n := 0; n < acc.Count; n++ {
		src := acc.ByteOffset + n*stride
		if src+elem > len(data) {
			return nil, fmt.Errorf("%w: accessor %d element %d overruns its buffer view", ErrInvalidData, i, n)
		}
		copy(result[n*elem:(n+1)*elem], data[src:src+elem])
	}
	return result, nil
}

// ReadFloats returns every component of accessor i as float32, Count*Components values.
// Normalized integer components are mapped to [0,1] or [-1,1]; others are converted as is.
//
// Parameters:
//   - i: the accessor index
//
// Returns:
//   - []float32: the component values in element order
//   - error: ErrInvalidData if the accessor cannot be resolved
func (a *Asset) ReadFloats(i int) ([]float32, error) {
	data, err := a.ReadAccessor(i)
	if err != nil {
		return nil, err
	}
	acc := a.accessors[i]
	size := acc.ComponentType.Size()
	out := make([]float32, len(data)/size)

	for n := range out {
		b := data[n*size:]
		switch acc.ComponentType {
		case ComponentFloat:
			out[n] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case ComponentByte:
			v := float32(int8(b[0]))
			if acc.Normalized {
				v = max(v/127, -1)
			}
			out[n] = v
		case ComponentUnsignedByte:
			v := float32(b[0])
			if acc.Normalized {
				v /= 255
			}
			out[n] = v
		case ComponentShort:
			v := float32(int16(binary.LittleEndian.Uint16(b)))
			if acc.Normalized {
				v = max(v/32767, -1)
			}
			out[n] = v
		case ComponentUnsignedShort:
			v := float32(binary.LittleEndian.Uint16(b))
			if acc.Normalized {
				v /= 65535
			}
			out[n] = v
		case ComponentUnsignedInt:
			out[n] = float32(binary.LittleEndian.Uint32(b))
		}
	}
	return out, nil
}

// ReadIndices returns a SCALAR unsigned accessor widened to uint32.
// Handles UNSIGNED_BYTE, UNSIGNED_SHORT, and UNSIGNED_INT component types.
//
// Parameters:
//   - i: the accessor index
//
// Returns:
//   - []uint32: the index data
//   - error: error if the accessor is not an unsigned scalar or cannot be resolved
func (a *Asset) ReadIndices(i int) ([]uint32, error) {
	acc, err := lookup(a.accessors, "accessor", i)
	if err != nil {
		return nil, err
	}
	if acc.Type != AccessorScalar {
		return nil, fmt.Errorf("index accessor %d is not SCALAR: %s", i, acc.Type)
	}

	data, err := a.ReadAccessor(i)
	if err != nil {
		return nil, err
	}

	result := make([]uint32, acc.Count)
	switch acc.ComponentType {
	case ComponentUnsignedByte:
		for n := range result {
			result[n] = uint32(data[n])
		}
	case ComponentUnsignedShort:
		for n := range result {
			result[n] = uint32(binary.LittleEndian.Uint16(data[n*2:]))
		}
	case ComponentUnsignedInt:
		for n := range result {
			result[n] = binary.LittleEndian.Uint32(data[n*4:])
		}
	default:
		return nil, fmt.Errorf("unsupported index component type: %s", acc.ComponentType)
	}
	return result, nil
}
