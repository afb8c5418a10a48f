// Package phantom generates synthetic anatomy used to exercise the bending
// engine: a flat disc and a long-bone shaft with widened ends.
package phantom

import (
	"fmt"
	"math"

	"osteoplan/pkg/mesh"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Disc returns a flat disc of the given radius in the z=0 plane, centred on
// the origin and wound so its normals point to +z. The disc is built from a
// centre vertex and rings of segments vertices each.
func Disc(radius float64, rings, segments int) (*mesh.Mesh, error) {
	if radius <= 0 || rings < 1 || segments < 3 {
		return nil, fmt.Errorf("invalid disc parameters: radius=%v rings=%d segments=%d", radius, rings, segments)
	}

	m := &mesh.Mesh{Points: []r3.Vec{{}}}
	for r := 1; r <= rings; r++ {
		rr := radius * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			phi := 2 * math.Pi * float64(s) / float64(segments)
			m.Points = append(m.Points, r3.Vec{X: rr * math.Cos(phi), Y: rr * math.Sin(phi)})
		}
	}

	ring := func(r, s int) int { return 1 + (r-1)*segments + s%segments }
	for s := 0; s < segments; s++ {
		m.Triangles = append(m.Triangles, [3]int{0, ring(1, s), ring(1, s+1)})
	}
	for r := 1; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s+1), ring(r+1, s)
			m.Triangles = append(m.Triangles, [3]int{a, d, c}, [3]int{a, c, b})
		}
	}

	m.ComputeNormals()
	return m, nil
}

// ShaftParams describes a long-bone phantom lying along the x axis
type ShaftParams struct {
	Length      float64 // total length including both heads
	ShaftRadius float64
	HeadRadius  float64 // radius of the widened ends
	HeadLength  float64 // length of each widened end
	Cells       int     // marching cubes cells along the longest axis
}

// DefaultShaft returns a shaft roughly the size of a forearm bone in millimetres
func DefaultShaft() ShaftParams {
	return ShaftParams{
		Length:      120,
		ShaftRadius: 8,
		HeadRadius:  12,
		HeadLength:  18,
		Cells:       80,
	}
}

// Shaft builds the long-bone phantom as a signed distance field and
// tessellates it with marching cubes. The result is cleaned and carries
// outward point and cell normals.
func Shaft(p ShaftParams) (*mesh.Mesh, error) {
	if p.Length <= 0 || p.ShaftRadius <= 0 || p.Cells < 8 {
		return nil, fmt.Errorf("invalid shaft parameters: %+v", p)
	}
	if p.HeadRadius < p.ShaftRadius {
		p.HeadRadius = p.ShaftRadius
	}
	if p.HeadLength <= 0 || 2*p.HeadLength >= p.Length {
		p.HeadLength = p.Length / 8
	}

	body, err := sdf.Cylinder3D(p.Length, p.ShaftRadius, 0)
	if err != nil {
		return nil, fmt.Errorf("creating shaft: %w", err)
	}
	head, err := sdf.Cylinder3D(p.HeadLength, p.HeadRadius, p.HeadLength/6)
	if err != nil {
		return nil, fmt.Errorf("creating head: %w", err)
	}

	offset := (p.Length - p.HeadLength) / 2
	top := sdf.Transform3D(head, sdf.Translate3d(v3.Vec{Z: offset}))
	bottom := sdf.Transform3D(head, sdf.Translate3d(v3.Vec{Z: -offset}))
	bone := sdf.Union3D(sdf.Union3D(body, top), bottom)

	// Cylinders are built along z; lay the bone along x
	bone = sdf.Transform3D(bone, sdf.RotateY(math.Pi/2))

	renderer := render.NewMarchingCubesUniform(p.Cells)
	triangles := render.ToTriangles(bone, renderer)

	soup := &mesh.Mesh{
		Points:    make([]r3.Vec, 0, len(triangles)*3),
		Triangles: make([][3]int, 0, len(triangles)),
	}
	for _, tri := range triangles {
		base := len(soup.Points)
		for j := 0; j < 3; j++ {
			v := tri[j]
			soup.Points = append(soup.Points, r3.Vec{X: v.X, Y: v.Y, Z: v.Z})
		}
		soup.Triangles = append(soup.Triangles, [3]int{base, base + 1, base + 2})
	}

	// Neighbouring cubes compute shared vertices independently
	weld := 1e-6 * p.Length / float64(p.Cells)
	m, err := soup.Clean(weld)
	if err != nil {
		return nil, fmt.Errorf("cleaning shaft mesh: %w", err)
	}
	m.ComputeNormals()
	return m, nil
}
