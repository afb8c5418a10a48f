package bending

import (
	"osteoplan/pkg/interpolation"
	"osteoplan/pkg/landmarks"
)

// Params holds the tunable parameters of a bend session
type Params struct {
	SampleTolerance   float64             // landmark merge distance, relative to the bounding box diagonal unless AbsoluteTolerance
	AbsoluteTolerance bool                // interpret SampleTolerance in mesh units
	Sigma             float64             // spline regularisation, 0 for exact interpolation
	Basis             interpolation.Basis // spline kernel
	Epsilon           float64             // length below which vectors count as degenerate
	NumCores          int                 // goroutines used to warp meshes, 0 for all cores
	Verbose           bool                // print progress when no callback is set
}

// DefaultParams returns the default bend parameters
func DefaultParams() Params {
	return Params{
		SampleTolerance: landmarks.DefaultTolerance,
		Sigma:           1e-4,
		Basis:           interpolation.R,
		Epsilon:         1e-6,
	}
}

// ProgressCallback receives progress and status messages
type ProgressCallback func(completed, total int, message string)
