package bending

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// NumAnchors is the number of axis-defining points at the start of a landmark
// set: A, B, C and D
const NumAnchors = 4

// Landmarks is the source landmark set of a bend session. Points holds A, B,
// C and D followed by the surface samples. Axis is the unit bend direction,
// kept separately from the points.
type Landmarks struct {
	Points []r3.Vec
	Axis   r3.Vec
}

// NewLandmarks assembles the landmark set from the derived axis and the
// surface samples
func NewLandmarks(ax *Axis, samples []r3.Vec) *Landmarks {
	points := make([]r3.Vec, 0, NumAnchors+len(samples))
	points = append(points, ax.A, ax.B, ax.C, ax.D)
	points = append(points, samples...)
	return &Landmarks{Points: points, Axis: ax.Direction}
}

// Len returns the number of landmark points
func (l *Landmarks) Len() int { return len(l.Points) }

// Anchors returns A, B, C and D
func (l *Landmarks) Anchors() []r3.Vec { return l.Points[:NumAnchors] }

// Samples returns the surface samples
func (l *Landmarks) Samples() []r3.Vec { return l.Points[NumAnchors:] }
