package bending

import (
	"errors"
	"fmt"
)

var (
	// ErrFiducialCount is returned when anything other than two fiducials is supplied
	ErrFiducialCount = errors.New("bending: exactly two fiducials are required")
	// ErrDegenerateFiducials is returned when the fiducials are (nearly) coincident
	ErrDegenerateFiducials = errors.New("bending: fiducials are coincident")
	// ErrDegenerateAxis is returned when the bend line is parallel to the surface normal
	ErrDegenerateAxis = errors.New("bending: bend line is parallel to the surface normal")
	// ErrNoIntersection is returned when a construction plane misses the mesh
	ErrNoIntersection = errors.New("bending: plane does not intersect the mesh")
	// ErrNotInitialized is returned when a session operation needs an initialized session
	ErrNotInitialized = errors.New("bending: session not initialized")
	// ErrFiducialTooFar is returned when a fiducial lies too far from the model surface
	ErrFiducialTooFar = errors.New("bending: fiducial too far from the model")
)

// GeometryError reports which stage of the bend construction failed.
// Callers should present it as "cannot compute bend for this input".
type GeometryError struct {
	Stage string
	Err   error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("cannot compute bend (%s): %v", e.Stage, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

func geometryError(stage string, err error) error {
	return &GeometryError{Stage: stage, Err: err}
}
