package mesh

import (
	"fmt"
	"sort"

	"osteoplan/pkg/spatial"

	"gonum.org/v1/gonum/spatial/r3"
)

// Clean returns a copy of the mesh with points closer than tol merged,
// degenerate and duplicate triangles removed and unused points dropped.
// A tolerance of zero merges only exactly coincident points. Normals are not
// carried over.
func (m *Mesh) Clean(tol float64) (*Mesh, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	merged, mapping := spatial.Merge(m.Points, tol)

	// Triangles are kept in input order; the first copy of a duplicate wins
	seen := make(map[[3]int]struct{}, len(m.Triangles))
	triangles := make([][3]int, 0, len(m.Triangles))
	for _, t := range m.Triangles {
		nt := [3]int{mapping[t[0]], mapping[t[1]], mapping[t[2]]}
		if nt[0] == nt[1] || nt[1] == nt[2] || nt[0] == nt[2] {
			continue
		}

		key := nt
		sort.Ints(key[:])
		if _, dup := seen[key]; dup {
			continue
		}

		tri := r3.Triangle{merged[nt[0]], merged[nt[1]], merged[nt[2]]}
		if tri.IsDegenerate(tol) || r3.Norm2(tri.Normal()) == 0 {
			continue
		}

		seen[key] = struct{}{}
		triangles = append(triangles, nt)
	}

	if len(triangles) == 0 {
		return nil, fmt.Errorf("%w: all triangles are degenerate", ErrEmptyMesh)
	}

	// Drop unused points, renumbering in order of first use by index
	used := make([]int, len(merged))
	for i := range used {
		used[i] = -1
	}
	for _, t := range triangles {
		for _, idx := range t {
			used[idx] = 0
		}
	}
	points := make([]r3.Vec, 0, len(merged))
	for i, p := range merged {
		if used[i] == 0 {
			used[i] = len(points)
			points = append(points, p)
		}
	}
	for i, t := range triangles {
		triangles[i] = [3]int{used[t[0]], used[t[1]], used[t[2]]}
	}

	return &Mesh{Points: points, Triangles: triangles}, nil
}
