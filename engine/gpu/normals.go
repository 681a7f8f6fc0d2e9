package gpu

import (
	"github.com/chewxy/math32"
)

// generateNormals computes smooth per-vertex normals for a triangle list. Each triangle's
// area-weighted face normal is accumulated into its three vertices and the sums are normalized.
// Vertices that belong to no triangle, or only to degenerate ones, get +Y.
//
// Parameters:
//   - positions: xyz triples, one per vertex
//   - indices: triangle list indices, or nil for non-indexed drawing
//
// Returns:
//   - []float32: xyz normals, one per vertex
func generateNormals(positions []float32, indices []uint32) []float32 {
	n := len(positions) / 3
	if indices == nil {
		indices = make([]uint32, n)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	accum := make([]float32, n*3)
	vertex := func(i uint32) [3]float32 {
		return [3]float32{positions[i*3], positions[i*3+1], positions[i*3+2]}
	}

	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		if int(i0) >= n || int(i1) >= n || int(i2) >= n {
			continue
		}
		p0, p1, p2 := vertex(i0), vertex(i1), vertex(i2)

		edge1 := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		edge2 := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}

		// length is proportional to the triangle's area
		face := [3]float32{
			edge1[1]*edge2[2] - edge1[2]*edge2[1],
			edge1[2]*edge2[0] - edge1[0]*edge2[2],
			edge1[0]*edge2[1] - edge1[1]*edge2[0],
		}
		for _, idx := range [3]uint32{i0, i1, i2} {
			accum[idx*3] += face[0]
			accum[idx*3+1] += face[1]
			accum[idx*3+2] += face[2]
		}
	}

	for i := 0; i < n; i++ {
		x, y, z := accum[i*3], accum[i*3+1], accum[i*3+2]
		length := math32.Sqrt(x*x + y*y + z*z)
		if length < 1e-6 {
			accum[i*3], accum[i*3+1], accum[i*3+2] = 0, 1, 0
			continue
		}
		accum[i*3], accum[i*3+1], accum[i*3+2] = x/length, y/length, z/length
	}
	return accum
}
