// Package locator answers closest-point queries against triangulated
// surfaces and polylines. Cells are indexed by their centroids in a kd-tree;
// candidates near the query are then tested exactly.
package locator

import (
	"errors"
	"fmt"
	"math"

	"osteoplan/pkg/geometry"
	"osteoplan/pkg/mesh"
	"osteoplan/pkg/spatial"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmptyLocator is returned when a locator has no cells to query
	ErrEmptyLocator = errors.New("locator: no cells")
	// ErrNoNormals is returned when a normal is requested from a mesh without cell normals
	ErrNoNormals = errors.New("locator: mesh has no cell normals")
	// ErrCellMismatch is returned when a locator and a mesh disagree on the number of cells
	ErrCellMismatch = errors.New("locator: locator was built over a different mesh")
)

// Locator is a closest-point spatial index over the cells of a mesh or a
// polyline. It keeps its own copy of the cell geometry, so later changes to
// the source do not affect it.
type Locator struct {
	triangles []r3.Triangle
	segments  [][2]r3.Vec

	centroids *spatial.PointSet
	// maxRadius bounds the distance from any cell centroid to its vertices
	maxRadius float64
}

// New builds a locator over the triangles of m
func New(m *mesh.Mesh) (*Locator, error) {
	if m == nil || m.NumCells() == 0 {
		return nil, ErrEmptyLocator
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("building locator: %w", err)
	}

	l := &Locator{triangles: make([]r3.Triangle, m.NumCells())}
	centroids := make([]r3.Vec, m.NumCells())
	for i := range m.Triangles {
		t := m.Triangle(i)
		c := t.Centroid()
		l.triangles[i] = t
		centroids[i] = c
		for _, v := range t {
			l.maxRadius = math.Max(l.maxRadius, r3.Norm(r3.Sub(v, c)))
		}
	}
	l.centroids = spatial.NewPointSet(centroids)
	return l, nil
}

// NewFromPolyline builds a locator over the segments of p
func NewFromPolyline(p *mesh.Polyline) (*Locator, error) {
	if p == nil || p.NumCells() == 0 {
		return nil, ErrEmptyLocator
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("building locator: %w", err)
	}

	l := &Locator{segments: make([][2]r3.Vec, p.NumCells())}
	centroids := make([]r3.Vec, p.NumCells())
	for i := range p.Segments {
		a, b := p.Segment(i)
		c := geometry.Midpoint(a, b)
		l.segments[i] = [2]r3.Vec{a, b}
		centroids[i] = c
		l.maxRadius = math.Max(l.maxRadius, 0.5*r3.Norm(r3.Sub(b, a)))
	}
	l.centroids = spatial.NewPointSet(centroids)
	return l, nil
}

// NumCells returns the number of indexed cells
func (l *Locator) NumCells() int {
	if l == nil {
		return 0
	}
	return len(l.triangles) + len(l.segments)
}

// closestOnCell returns the point of cell i closest to q
func (l *Locator) closestOnCell(i int, q r3.Vec) r3.Vec {
	if l.triangles != nil {
		return geometry.ClosestPointOnTriangle(l.triangles[i], q)
	}
	s := l.segments[i]
	return geometry.ClosestPointOnSegment(s[0], s[1], q)
}

// ClosestPoint returns the point on the indexed geometry closest to q, the id
// of the cell it lies on and the squared distance to it. When several cells are
// equally close the lowest id is returned.
func (l *Locator) ClosestPoint(q r3.Vec) (point r3.Vec, cellID int, dist2 float64, err error) {
	if l.NumCells() == 0 {
		return r3.Vec{}, -1, 0, ErrEmptyLocator
	}
	if !geometry.IsFinite(q) {
		return r3.Vec{}, -1, 0, fmt.Errorf("locator: query point %v is not finite", q)
	}

	seed, _, ok := l.centroids.Nearest(q)
	if !ok {
		return r3.Vec{}, -1, 0, ErrEmptyLocator
	}
	point = l.closestOnCell(seed, q)
	cellID = seed
	dist2 = r3.Norm2(r3.Sub(point, q))

	// Any cell closer than the seed has its centroid within this radius
	radius := math.Sqrt(dist2) + l.maxRadius
	for _, i := range l.centroids.Within(q, radius*(1+1e-12)) {
		if i == seed {
			continue
		}
		p := l.closestOnCell(i, q)
		d := r3.Norm2(r3.Sub(p, q))
		if d < dist2 || (d == dist2 && i < cellID) {
			point, cellID, dist2 = p, i, d
		}
	}

	return point, cellID, dist2, nil
}

// NormalAt returns the flat cell normal of the triangle of m closest to q.
// loc must have been built over m (or a mesh with the same triangles) and m
// must carry cell normals.
func NormalAt(q r3.Vec, loc *Locator, m *mesh.Mesh) (r3.Vec, error) {
	if m == nil || len(m.CellNormals) == 0 || len(m.CellNormals) != m.NumCells() {
		return r3.Vec{}, ErrNoNormals
	}
	if loc.NumCells() != m.NumCells() {
		return r3.Vec{}, fmt.Errorf("%w: %d cells indexed, mesh has %d", ErrCellMismatch, loc.NumCells(), m.NumCells())
	}

	_, id, _, err := loc.ClosestPoint(q)
	if err != nil {
		return r3.Vec{}, err
	}
	return m.CellNormals[id], nil
}

// DistanceToModel returns the distance from p to the surface of m using a
// locator built for this query only
func DistanceToModel(p r3.Vec, m *mesh.Mesh) (float64, error) {
	loc, err := New(m)
	if err != nil {
		return 0, err
	}
	_, _, d2, err := loc.ClosestPoint(p)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(d2), nil
}
