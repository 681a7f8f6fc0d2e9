package common

import (
	"unsafe"

	"github.com/chewxy/math32"
)

// Mat4 is a 4x4 matrix stored in column-major order (WebGPU convention).
type Mat4 [16]float32

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// IdentityMat4 returns a new identity matrix.
func IdentityMat4() Mat4 {
	var m Mat4
	Identity(m[:])
	return m
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// Mul4 multiplies two 4x4 matrices and stores the result in out (out = a * b).
// out may alias a or b.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// ComposeTRS builds the matrix T * R * S from a translation, a rotation quaternion (x, y, z, w)
// and a scale. The quaternion is normalized first; a zero quaternion is treated as identity.
//
// Parameters:
//   - t: translation (x, y, z)
//   - r: rotation quaternion (x, y, z, w)
//   - s: scale (x, y, z)
//
// Returns:
//   - Mat4: the composed column-major matrix
func ComposeTRS(t [3]float32, r [4]float32, s [3]float32) Mat4 {
	x, y, z, w := r[0], r[1], r[2], r[3]
	n := math32.Sqrt(x*x + y*y + z*z + w*w)
	if n == 0 {
		x, y, z, w = 0, 0, 0, 1
	} else {
		x, y, z, w = x/n, y/n, z/n, w/n
	}

	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	var m Mat4
	m[0] = (1 - 2*(yy+zz)) * s[0]
	m[1] = (2 * (xy + wz)) * s[0]
	m[2] = (2 * (xz - wy)) * s[0]

	m[4] = (2 * (xy - wz)) * s[1]
	m[5] = (1 - 2*(xx+zz)) * s[1]
	m[6] = (2 * (yz + wx)) * s[1]

	m[8] = (2 * (xz + wy)) * s[2]
	m[9] = (2 * (yz - wx)) * s[2]
	m[10] = (1 - 2*(xx+yy)) * s[2]

	m[12], m[13], m[14], m[15] = t[0], t[1], t[2], 1
	return m
}
