// Package mesh provides the triangulated surface model used by the bending
// engine, together with the preparation passes it requires: cleaning,
// consistently oriented point and cell normals, and plane cutting.
package mesh

import (
	"errors"
	"fmt"

	"osteoplan/pkg/geometry"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmptyMesh is returned for meshes without any triangle
	ErrEmptyMesh = errors.New("mesh: no triangles")
	// ErrInvalidMesh is returned when a mesh references missing points or holds non-finite coordinates
	ErrInvalidMesh = errors.New("mesh: invalid mesh")
)

// Mesh is a triangulated surface. PointNormals and CellNormals are optional
// and filled by ComputeNormals.
type Mesh struct {
	Points       []r3.Vec
	Triangles    [][3]int
	PointNormals []r3.Vec
	CellNormals  []r3.Vec
}

// New creates a mesh from points and triangle indices. The slices are used
// as given.
func New(points []r3.Vec, triangles [][3]int) *Mesh {
	return &Mesh{Points: points, Triangles: triangles}
}

// NumPoints returns the number of points
func (m *Mesh) NumPoints() int { return len(m.Points) }

// NumCells returns the number of triangles
func (m *Mesh) NumCells() int { return len(m.Triangles) }

// Triangle returns the vertices of triangle i
func (m *Mesh) Triangle(i int) r3.Triangle {
	t := m.Triangles[i]
	return r3.Triangle{m.Points[t[0]], m.Points[t[1]], m.Points[t[2]]}
}

// HasNormals reports whether both point and cell normals are present and
// match the mesh size
func (m *Mesh) HasNormals() bool {
	return len(m.PointNormals) == len(m.Points) && len(m.CellNormals) == len(m.Triangles) && len(m.Triangles) > 0
}

// Clone returns a deep copy of the mesh
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Points:    append([]r3.Vec(nil), m.Points...),
		Triangles: append([][3]int(nil), m.Triangles...),
	}
	if m.PointNormals != nil {
		c.PointNormals = append([]r3.Vec(nil), m.PointNormals...)
	}
	if m.CellNormals != nil {
		c.CellNormals = append([]r3.Vec(nil), m.CellNormals...)
	}
	return c
}

// Validate checks that the mesh has triangles, that every index refers to an
// existing point and that all coordinates are finite
func (m *Mesh) Validate() error {
	if m == nil || len(m.Triangles) == 0 {
		return ErrEmptyMesh
	}
	for i, p := range m.Points {
		if !geometry.IsFinite(p) {
			return fmt.Errorf("%w: point %d is not finite", ErrInvalidMesh, i)
		}
	}
	for i, t := range m.Triangles {
		for _, idx := range t {
			if idx < 0 || idx >= len(m.Points) {
				return fmt.Errorf("%w: triangle %d references point %d of %d", ErrInvalidMesh, i, idx, len(m.Points))
			}
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the mesh points
func (m *Mesh) Bounds() r3.Box {
	return geometry.Bounds(m.Points)
}

// Diagonal returns the length of the bounding box diagonal
func (m *Mesh) Diagonal() float64 {
	return geometry.BoundingDiagonal(m.Points)
}

// Area returns the total surface area
func (m *Mesh) Area() float64 {
	area := 0.0
	for i := range m.Triangles {
		area += m.Triangle(i).Area()
	}
	return area
}

// Volume returns the signed enclosed volume computed with the divergence
// theorem. It is only meaningful for closed surfaces and is positive when the
// triangles are wound with outward normals.
func (m *Mesh) Volume() float64 {
	vol := 0.0
	for i := range m.Triangles {
		t := m.Triangle(i)
		vol += r3.Dot(t[0], r3.Cross(t[1], t[2]))
	}
	return vol / 6
}

// WithPoints returns a copy of the mesh sharing its topology but using the
// given point positions. Normals are recomputed for the new geometry.
func (m *Mesh) WithPoints(points []r3.Vec) (*Mesh, error) {
	if len(points) != len(m.Points) {
		return nil, fmt.Errorf("%w: got %d points for a mesh of %d", ErrInvalidMesh, len(points), len(m.Points))
	}
	out := &Mesh{
		Points:    append([]r3.Vec(nil), points...),
		Triangles: append([][3]int(nil), m.Triangles...),
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.ComputeNormals()
	return out, nil
}

// Prepare returns the cleaned, consistently oriented copy of m with point and
// cell normals that the locators and the bending session operate on. The
// input mesh is not modified.
func Prepare(m *Mesh) (*Mesh, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	cleaned, err := m.Clean(0)
	if err != nil {
		return nil, err
	}
	cleaned.ComputeNormals()
	return cleaned, nil
}
