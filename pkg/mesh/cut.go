package mesh

import (
	"fmt"
	"sort"

	"osteoplan/pkg/geometry"

	"gonum.org/v1/gonum/spatial/r3"
)

// Polyline is a set of line segments, typically the intersection of a mesh
// with a plane
type Polyline struct {
	Points   []r3.Vec
	Segments [][2]int
}

// NumCells returns the number of segments
func (p *Polyline) NumCells() int { return len(p.Segments) }

// Segment returns the end points of segment i
func (p *Polyline) Segment(i int) (r3.Vec, r3.Vec) {
	s := p.Segments[i]
	return p.Points[s[0]], p.Points[s[1]]
}

// Length returns the total length of all segments
func (p *Polyline) Length() float64 {
	total := 0.0
	for i := range p.Segments {
		a, b := p.Segment(i)
		total += r3.Norm(r3.Sub(b, a))
	}
	return total
}

// cutKey identifies an intersection point: either a mesh vertex lying on the
// plane (b == -1) or the crossing of edge (a, b)
type cutKey struct{ a, b int }

// Cut intersects the mesh with a plane and returns the resulting segments.
//
// Triangles are split using the signs of their vertices' distances to the
// plane. Vertices within a small tolerance of the plane count as lying on it,
// and intersection points shared by neighbouring triangles are emitted once.
// Triangles lying in the plane contribute nothing; their boundary edges are
// produced by the adjacent triangles.
func (m *Mesh) Cut(pl geometry.Plane) *Polyline {
	eps := 1e-12 * m.Diagonal()

	dist := make([]float64, len(m.Points))
	side := make([]int, len(m.Points))
	for i, p := range m.Points {
		d := pl.Evaluate(p)
		if d <= eps && d >= -eps {
			d = 0
		}
		dist[i] = d
		side[i] = geometry.Sign(d)
	}

	out := &Polyline{}
	index := make(map[cutKey]int)
	segments := make(map[[2]int]struct{})

	pointFor := func(k cutKey) int {
		if idx, ok := index[k]; ok {
			return idx
		}
		var p r3.Vec
		if k.b < 0 {
			p = m.Points[k.a]
		} else {
			// Interpolate from the lower index so shared edges give identical points
			t := dist[k.a] / (dist[k.a] - dist[k.b])
			p = r3.Add(m.Points[k.a], r3.Scale(t, r3.Sub(m.Points[k.b], m.Points[k.a])))
		}
		idx := len(out.Points)
		out.Points = append(out.Points, p)
		index[k] = idx
		return idx
	}

	for _, t := range m.Triangles {
		if side[t[0]] == 0 && side[t[1]] == 0 && side[t[2]] == 0 {
			continue
		}

		var hits []int
		add := func(idx int) {
			for _, h := range hits {
				if h == idx {
					return
				}
			}
			hits = append(hits, idx)
		}

		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			if side[a] == 0 {
				add(pointFor(cutKey{a: a, b: -1}))
			}
			if side[a]*side[b] < 0 {
				lo, hi := a, b
				if lo > hi {
					lo, hi = hi, lo
				}
				add(pointFor(cutKey{a: lo, b: hi}))
			}
		}

		if len(hits) != 2 {
			continue
		}
		seg := [2]int{hits[0], hits[1]}
		key := seg
		sort.Ints(key[:])
		if _, dup := segments[key]; dup {
			continue
		}
		segments[key] = struct{}{}
		out.Segments = append(out.Segments, seg)
	}

	return out
}

// Validate checks that the polyline has segments with valid indices
func (p *Polyline) Validate() error {
	if p == nil || len(p.Segments) == 0 {
		return fmt.Errorf("%w: polyline has no segments", ErrEmptyMesh)
	}
	for i, s := range p.Segments {
		for _, idx := range s {
			if idx < 0 || idx >= len(p.Points) {
				return fmt.Errorf("%w: segment %d references point %d of %d", ErrInvalidMesh, i, idx, len(p.Points))
			}
		}
	}
	return nil
}
