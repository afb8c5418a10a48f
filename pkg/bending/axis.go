package bending

import (
	"fmt"

	"osteoplan/pkg/geometry"
	"osteoplan/pkg/locator"
	"osteoplan/pkg/mesh"

	"gonum.org/v1/gonum/spatial/r3"
)

// flatTolerance is the pivot offset, relative to |B-A|, below which the surface
// under the bend line counts as flat
const flatTolerance = 1e-3

// Axis is the bend geometry derived from a pair of fiducials.
//
// A0 and B0 are the fiducials as picked and A, B the same points snapped onto
// the surface curve under the bend line. C and D sit on either side of the
// bend line along the raw axis estimate. E is the midpoint of A and B and F
// the pivot: the point of the axis curve closest to E. The fixed plane passes
// through E with normal B-A, so it contains the bend axis and separates the
// A half of the model from the B half.
type Axis struct {
	A0, B0 r3.Vec
	A, B   r3.Vec
	C, D   r3.Vec
	M      r3.Vec // midpoint of A0 and B0
	E      r3.Vec
	F      r3.Vec

	Normal    r3.Vec // surface normal at M
	Direction r3.Vec // unit bend axis, orthogonal to B-A

	FixedPlane geometry.Plane

	// BendLine is the cut of the mesh used to snap the fiducials and Curve the
	// cut by the fixed plane that points are bent around
	BendLine *mesh.Polyline
	Curve    *mesh.Polyline

	curve   *locator.Locator
	epsilon float64
}

// DeriveAxis computes the bend geometry for two fiducials on mesh m. normals
// must be a locator built over m, which must carry cell normals. eps is the
// length below which vectors are treated as degenerate.
func DeriveAxis(fiducials []r3.Vec, m *mesh.Mesh, normals *locator.Locator, eps float64) (*Axis, error) {
	if len(fiducials) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrFiducialCount, len(fiducials))
	}
	a0, b0 := fiducials[0], fiducials[1]
	if !geometry.IsFinite(a0) || !geometry.IsFinite(b0) {
		return nil, geometryError("fiducials", fmt.Errorf("fiducials %v, %v are not finite", a0, b0))
	}

	ab := r3.Sub(b0, a0)
	abLen := r3.Norm(ab)
	if abLen < eps {
		return nil, geometryError("fiducials", fmt.Errorf("%w: |B-A| = %g", ErrDegenerateFiducials, abLen))
	}

	ax := &Axis{A0: a0, B0: b0, epsilon: eps}
	ax.M = geometry.Midpoint(a0, b0)

	n, err := locator.NormalAt(ax.M, normals, m)
	if err != nil {
		return nil, geometryError("surface normal", err)
	}
	ax.Normal = n

	axis0 := r3.Cross(n, ab)
	if r3.Norm(axis0) < eps*abLen {
		return nil, geometryError("axis", ErrDegenerateAxis)
	}
	ax.C = r3.Add(ax.M, axis0)
	ax.D = r3.Sub(ax.M, axis0)

	// Snap the fiducials onto the surface curve in the plane holding the bend
	// line and the surface normal
	linePlane, err := geometry.NewPlane(ax.M, r3.Sub(ax.D, ax.C))
	if err != nil {
		return nil, geometryError("bend line plane", err)
	}
	ax.BendLine = m.Cut(linePlane)
	if ax.BendLine.NumCells() == 0 {
		return nil, geometryError("bend line plane", ErrNoIntersection)
	}
	line, err := locator.NewFromPolyline(ax.BendLine)
	if err != nil {
		return nil, geometryError("bend line plane", err)
	}
	if ax.A, _, _, err = line.ClosestPoint(a0); err != nil {
		return nil, geometryError("snap", err)
	}
	if ax.B, _, _, err = line.ClosestPoint(b0); err != nil {
		return nil, geometryError("snap", err)
	}

	snapped := r3.Sub(ax.B, ax.A)
	snappedLen := r3.Norm(snapped)
	if snappedLen < eps {
		return nil, geometryError("snap", fmt.Errorf("%w: snapped |B-A| = %g", ErrDegenerateFiducials, snappedLen))
	}

	ax.E = geometry.Midpoint(ax.A, ax.B)
	if ax.FixedPlane, err = geometry.NewPlane(ax.E, snapped); err != nil {
		return nil, geometryError("fixed plane", err)
	}

	ax.Curve = m.Cut(ax.FixedPlane)
	if ax.Curve.NumCells() == 0 {
		return nil, geometryError("fixed plane", ErrNoIntersection)
	}
	if ax.curve, err = locator.NewFromPolyline(ax.Curve); err != nil {
		return nil, geometryError("fixed plane", err)
	}

	if ax.F, _, _, err = ax.curve.ClosestPoint(ax.E); err != nil {
		return nil, geometryError("pivot", err)
	}

	ef := r3.Sub(ax.E, ax.F)
	dir := r3.Cross(ef, r3.Sub(ax.B, ax.F))
	if r3.Norm(ef) < flatTolerance*snappedLen {
		// E lies on the axis curve, as on a locally flat surface or a straight
		// shaft, and E-F carries no direction
		dir = r3.Cross(snapped, n)
	}
	if ax.Direction, err = geometry.SafeUnit(dir, 0); err != nil {
		return nil, geometryError("axis direction", fmt.Errorf("%w: %v", ErrDegenerateAxis, err))
	}

	return ax, nil
}

// Foot returns the point of the axis curve closest to p
func (ax *Axis) Foot(p r3.Vec) (r3.Vec, error) {
	f, _, _, err := ax.curve.ClosestPoint(p)
	return f, err
}
