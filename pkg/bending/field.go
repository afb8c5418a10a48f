package bending

import (
	"fmt"

	"osteoplan/internal/models"
	"osteoplan/pkg/geometry"

	"gonum.org/v1/gonum/spatial/r3"
)

// BendPoint returns where p moves for the given bend magnitude.
//
// p is rotated about its foot F on the axis curve: it is pushed perpendicular
// to both F-p and the axis by magnitude*|F-p|, then pulled back along the line
// to F so that its distance from F is unchanged. The two sides of the fixed
// plane are pushed in mirrored directions so they fold towards each other.
// Points on the axis curve do not move.
func (ax *Axis) BendPoint(p r3.Vec, magnitude float64) (r3.Vec, error) {
	if magnitude == 0 {
		return p, nil
	}

	f, err := ax.Foot(p)
	if err != nil {
		return p, err
	}

	af := r3.Sub(f, p)
	radius := r3.Norm(af)
	if radius < ax.epsilon {
		return p, nil
	}

	var bendVector r3.Vec
	if ax.FixedPlane.Evaluate(p) < 0 {
		bendVector = r3.Cross(af, ax.Direction)
	} else {
		bendVector = r3.Cross(ax.Direction, af)
	}
	bendDir, err := geometry.SafeUnit(bendVector, ax.epsilon*radius)
	if err != nil {
		// F-p runs along the axis
		return p, nil
	}

	moved := r3.Add(p, r3.Scale(magnitude*radius, bendDir))

	a2f := r3.Sub(f, moved)
	a2fDir, err := geometry.SafeUnit(a2f, 0)
	if err != nil {
		return moved, nil
	}
	moved = r3.Add(moved, r3.Scale(r3.Norm(a2f)-radius, a2fDir))

	return moved, nil
}

// moves reports whether a point on the given side of the fixed plane is bent
// under the mode and side policy
func (ax *Axis) moves(p r3.Vec, lm *Landmarks, mode models.BendMode, side models.BendSide) bool {
	if mode == models.DoubleSided {
		return true
	}
	anchor := lm.Points[0]
	if side == models.SideB {
		anchor = lm.Points[1]
	}
	return ax.FixedPlane.Side(p) == ax.FixedPlane.Side(anchor)
}

// GenerateTargets bends every source landmark and returns the target set in
// the same order. In double-sided mode every point is bent; in single-sided
// mode only points strictly on the same side of the fixed plane as landmark A
// (or B) are, and all others keep their position.
func (ax *Axis) GenerateTargets(lm *Landmarks, magnitude float64, mode models.BendMode, side models.BendSide) ([]r3.Vec, error) {
	if lm == nil || len(lm.Points) < NumAnchors {
		return nil, fmt.Errorf("%w: landmark set is incomplete", ErrNotInitialized)
	}

	targets := make([]r3.Vec, len(lm.Points))
	for i, p := range lm.Points {
		if !ax.moves(p, lm, mode, side) {
			targets[i] = p
			continue
		}
		q, err := ax.BendPoint(p, magnitude)
		if err != nil {
			return nil, fmt.Errorf("bending landmark %d: %w", i, err)
		}
		targets[i] = q
	}
	return targets, nil
}
