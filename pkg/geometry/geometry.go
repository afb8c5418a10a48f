// Package geometry holds the small amount of 3D geometry shared by the mesh,
// locator and bending packages: planes, closest points on triangles and
// segments, and guarded normalisation.
package geometry

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerate is returned when a vector is too short to define a direction
var ErrDegenerate = errors.New("geometry: degenerate vector")

// Plane is an oriented plane through Origin with unit Normal
type Plane struct {
	Origin r3.Vec
	Normal r3.Vec
}

// NewPlane creates a plane through origin with the given normal direction.
// The normal is normalised; a zero normal returns ErrDegenerate.
func NewPlane(origin, normal r3.Vec) (Plane, error) {
	n, err := SafeUnit(normal, 0)
	if err != nil {
		return Plane{}, err
	}
	return Plane{Origin: origin, Normal: n}, nil
}

// Evaluate returns the signed distance of p from the plane. Positive values lie
// on the side the normal points to.
func (pl Plane) Evaluate(p r3.Vec) float64 {
	return r3.Dot(pl.Normal, r3.Sub(p, pl.Origin))
}

// Side returns -1, 0 or +1 depending on which side of the plane p lies
func (pl Plane) Side(p r3.Vec) int {
	return Sign(pl.Evaluate(p))
}

// Project returns the orthogonal projection of p onto the plane
func (pl Plane) Project(p r3.Vec) r3.Vec {
	return r3.Sub(p, r3.Scale(pl.Evaluate(p), pl.Normal))
}

// Sign returns -1, 0 or +1
func Sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Midpoint returns the point halfway between a and b
func Midpoint(a, b r3.Vec) r3.Vec {
	return r3.Scale(0.5, r3.Add(a, b))
}

// SafeUnit returns v scaled to unit length. Vectors whose norm is not greater
// than eps, or is not finite, return ErrDegenerate.
func SafeUnit(v r3.Vec, eps float64) (r3.Vec, error) {
	n := r3.Norm(v)
	if !(n > eps) || math.IsInf(n, 0) {
		return r3.Vec{}, ErrDegenerate
	}
	return r3.Scale(1/n, v), nil
}

// IsFinite reports whether all components of v are finite numbers
func IsFinite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// ClosestPointOnSegment returns the point of segment ab closest to p
func ClosestPointOnSegment(a, b, p r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	t := r3.Dot(r3.Sub(p, a), ab) / l2
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return r3.Add(a, r3.Scale(t, ab))
}

// ClosestPointOnTriangle returns the point of triangle t closest to p.
//
// The triangle is parametrised as Q = t[0] + u*e0 + v*e1 and the distance to p
// minimised analytically. When the minimiser falls outside the triangle, or the
// triangle is degenerate, the closest point lies on one of the edges.
func ClosestPointOnTriangle(t r3.Triangle, p r3.Vec) r3.Vec {
	e0 := r3.Sub(t[1], t[0])
	e1 := r3.Sub(t[2], t[0])
	a := r3.Norm2(e0)
	b := r3.Dot(e0, e1)
	c := r3.Norm2(e1)
	d := r3.Sub(p, t[0])

	det := a*c - b*b
	if det > 1e-12*a*c {
		u := (c*r3.Dot(e0, d) - b*r3.Dot(e1, d)) / det
		v := (a*r3.Dot(e1, d) - b*r3.Dot(e0, d)) / det
		if u >= 0 && v >= 0 && u+v <= 1 {
			return r3.Add(t[0], r3.Add(r3.Scale(u, e0), r3.Scale(v, e1)))
		}
	}

	closest := ClosestPointOnSegment(t[0], t[1], p)
	best := r3.Norm2(r3.Sub(p, closest))

	if q := ClosestPointOnSegment(t[1], t[2], p); r3.Norm2(r3.Sub(p, q)) < best {
		closest = q
		best = r3.Norm2(r3.Sub(p, q))
	}
	if q := ClosestPointOnSegment(t[2], t[0], p); r3.Norm2(r3.Sub(p, q)) < best {
		closest = q
	}
	return closest
}

// Bounds returns the axis-aligned box enclosing points. Flat point sets give a
// box with zero extent along one axis.
func Bounds(points []r3.Vec) r3.Box {
	if len(points) == 0 {
		return r3.Box{}
	}
	box := r3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min = r3.Vec{X: math.Min(box.Min.X, p.X), Y: math.Min(box.Min.Y, p.Y), Z: math.Min(box.Min.Z, p.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, p.X), Y: math.Max(box.Max.Y, p.Y), Z: math.Max(box.Max.Z, p.Z)}
	}
	return box
}

// BoundingDiagonal returns the length of the diagonal of the box enclosing
// points, or 0 for an empty slice
func BoundingDiagonal(points []r3.Vec) float64 {
	return r3.Norm(Bounds(points).Size())
}
