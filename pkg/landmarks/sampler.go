// Package landmarks turns a surface mesh into the sparse point cloud used as
// control points for the bending spline.
package landmarks

import (
	"errors"
	"fmt"
	"math"

	"osteoplan/pkg/mesh"
	"osteoplan/pkg/spatial"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance is the default merge distance as a fraction of the mesh
// bounding box diagonal
const DefaultTolerance = 0.07

// ErrInvalidTolerance is returned for negative or non-finite tolerances
var ErrInvalidTolerance = errors.New("landmarks: invalid tolerance")

// Sampler decimates mesh vertices so that no two samples are closer than the
// tolerance.
//
// With Absolute unset, Tolerance is a fraction of the bounding box diagonal,
// which keeps the sampling density independent of the mesh units. With
// Absolute set it is a distance in mesh units.
type Sampler struct {
	Tolerance float64
	Absolute  bool
}

// NewSampler creates a sampler with the default relative tolerance
func NewSampler() *Sampler {
	return &Sampler{Tolerance: DefaultTolerance}
}

// Distance returns the merge distance the sampler uses for m
func (s *Sampler) Distance(m *mesh.Mesh) float64 {
	if s.Absolute {
		return s.Tolerance
	}
	return s.Tolerance * m.Diagonal()
}

// Sample returns the decimated vertices of m. Vertices are visited in index
// order and a vertex is kept when no previously kept vertex lies within the
// merge distance, so the result is deterministic for a given mesh. Vertices not
// referenced by any triangle are ignored.
func (s *Sampler) Sample(m *mesh.Mesh) ([]r3.Vec, error) {
	if s.Tolerance < 0 || math.IsNaN(s.Tolerance) || math.IsInf(s.Tolerance, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTolerance, s.Tolerance)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("sampling landmarks: %w", err)
	}

	used := make([]bool, m.NumPoints())
	for _, t := range m.Triangles {
		used[t[0]], used[t[1]], used[t[2]] = true, true, true
	}
	vertices := make([]r3.Vec, 0, m.NumPoints())
	for i, p := range m.Points {
		if used[i] {
			vertices = append(vertices, p)
		}
	}

	samples, _ := spatial.Merge(vertices, s.Distance(m))
	return samples, nil
}
