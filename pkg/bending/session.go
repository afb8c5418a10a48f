package bending

import (
	"errors"
	"fmt"
	"math"
	"time"

	"osteoplan/internal/models"
	"osteoplan/pkg/geometry"
	"osteoplan/pkg/interpolation"
	"osteoplan/pkg/landmarks"
	"osteoplan/pkg/locator"
	"osteoplan/pkg/mesh"

	"gonum.org/v1/gonum/spatial/r3"
)

// Session owns the state of one bend: the prepared mesh, its locators, the
// derived axis and the source landmarks. The deformation is rebuilt from that
// state on every Transform call.
//
// A Session is not safe for concurrent use. Separate sessions share nothing.
type Session struct {
	params Params
	mode   models.BendMode
	side   models.BendSide
	state  models.SessionState

	input    *mesh.Mesh
	prepared *mesh.Mesh

	surface *locator.Locator
	normals *locator.Locator

	axis      *Axis
	source    *Landmarks
	target    []r3.Vec
	transform *interpolation.ThinPlateSpline
	magnitude float64

	progressCallback ProgressCallback
}

// NewSession creates an uninitialized double-sided session
func NewSession(params Params) *Session {
	return &Session{
		params: params,
		mode:   models.DoubleSided,
		side:   models.SideA,
		state:  models.Uninitialized,
	}
}

// SetProgressCallback sets a callback for progress reporting
func (s *Session) SetProgressCallback(callback ProgressCallback) {
	s.progressCallback = callback
}

func (s *Session) reportProgress(completed, total int, message string) {
	if s.progressCallback != nil {
		s.progressCallback(completed, total, message)
	} else if s.params.Verbose && message != "" {
		fmt.Println(message)
	}
}

// Initialize prepares m, builds the locators, derives the bend axis from the
// two fiducials and samples the source landmarks. Any previous session state
// is released first. m itself is never modified. On failure the session is
// left uninitialized.
func (s *Session) Initialize(fiducials []r3.Vec, m *mesh.Mesh) error {
	s.Clear()
	start := time.Now()

	if len(fiducials) != 2 {
		return fmt.Errorf("%w: got %d", ErrFiducialCount, len(fiducials))
	}

	s.reportProgress(1, 5, "Preparing mesh...")
	prepared, err := mesh.Prepare(m)
	if err != nil {
		return fmt.Errorf("preparing mesh: %w", err)
	}

	s.reportProgress(2, 5, "Building locators...")
	surface, err := locator.New(prepared)
	if err != nil {
		return fmt.Errorf("building surface locator: %w", err)
	}
	normals, err := locator.New(prepared)
	if err != nil {
		return fmt.Errorf("building normal locator: %w", err)
	}

	s.reportProgress(3, 5, "Deriving bend axis...")
	ax, err := DeriveAxis(fiducials, prepared, normals, s.params.Epsilon)
	if err != nil {
		return err
	}

	s.reportProgress(4, 5, "Sampling landmarks...")
	sampler := &landmarks.Sampler{Tolerance: s.params.SampleTolerance, Absolute: s.params.AbsoluteTolerance}
	samples, err := sampler.Sample(prepared)
	if err != nil {
		return fmt.Errorf("sampling landmarks: %w", err)
	}

	s.input = m.Clone()
	s.prepared = prepared
	s.surface = surface
	s.normals = normals
	s.axis = ax
	s.source = NewLandmarks(ax, samples)
	s.state = models.Initialized

	s.reportProgress(5, 5, fmt.Sprintf("Bend initialized: %d landmarks (%d samples) in %v",
		s.source.Len(), len(samples), time.Since(start).Round(time.Millisecond)))
	return nil
}

// SetBendType sets the bend mode used by the next Transform call
func (s *Session) SetBendType(mode models.BendMode) { s.mode = mode }

// SetBendSide sets the side bent in single-sided mode
func (s *Session) SetBendSide(side models.BendSide) { s.side = side }

// Mode returns the current bend mode
func (s *Session) Mode() models.BendMode { return s.mode }

// Side returns the current bend side
func (s *Session) Side() models.BendSide { return s.side }

// State returns the session state
func (s *Session) State() models.SessionState { return s.state }

// Transform rebuilds the target landmarks for magnitude under the current
// mode and side and fits the deformation to them. The result only depends on
// the initialized state and these inputs. On failure the source landmarks are
// kept and the session returns to the initialized state.
func (s *Session) Transform(magnitude float64) (*interpolation.ThinPlateSpline, error) {
	if !s.state.Active() {
		return nil, fmt.Errorf("%w (state %s)", ErrNotInitialized, s.state)
	}

	targets, err := s.axis.GenerateTargets(s.source, magnitude, s.mode, s.side)
	if err != nil {
		s.dropTransform()
		return nil, geometryError("targets", err)
	}

	tps, err := interpolation.FitThinPlateSpline(s.source.Points, targets, s.params.Sigma, s.params.Basis)
	if err != nil {
		s.dropTransform()
		return nil, geometryError("spline", err)
	}

	s.target = targets
	s.transform = tps
	s.magnitude = magnitude
	s.state = models.Previewing
	return tps, nil
}

func (s *Session) dropTransform() {
	s.target = nil
	s.transform = nil
	s.state = models.Initialized
}

// Preview returns a copy of the input mesh deformed by the transform for
// magnitude
func (s *Session) Preview(magnitude float64) (*mesh.Mesh, error) {
	tps, err := s.Transform(magnitude)
	if err != nil {
		return nil, err
	}
	return s.warp(tps)
}

func (s *Session) warp(tps *interpolation.ThinPlateSpline) (*mesh.Mesh, error) {
	points := tps.ApplyAll(s.input.Points, s.params.NumCores)
	for i, p := range points {
		if !geometry.IsFinite(p) {
			return nil, geometryError("warp", fmt.Errorf("point %d mapped to %v", i, p))
		}
	}
	out, err := s.input.WithPoints(points)
	if err != nil {
		return nil, geometryError("warp", err)
	}
	return out, nil
}

// Finalize bakes the deformation for magnitude into a copy of the input mesh,
// recomputes its normals and releases the session data. On failure the
// session stays active and nothing is released.
func (s *Session) Finalize(magnitude float64) (*mesh.Mesh, error) {
	out, err := s.Preview(magnitude)
	if err != nil {
		return nil, err
	}
	s.release()
	s.state = models.Finalized
	s.reportProgress(1, 1, fmt.Sprintf("Bend finalized at magnitude %g", magnitude))
	return out, nil
}

// Clear releases all session data. It is safe to call at any time.
func (s *Session) Clear() {
	s.release()
	s.state = models.Uninitialized
}

// Cancel releases all session data without baking the deformation
func (s *Session) Cancel() {
	s.release()
	s.state = models.Cancelled
}

func (s *Session) release() {
	s.input = nil
	s.prepared = nil
	s.surface = nil
	s.normals = nil
	s.axis = nil
	s.source = nil
	s.target = nil
	s.transform = nil
	s.magnitude = 0
}

// Axis returns the derived bend geometry, or nil when the session is not active
func (s *Session) Axis() *Axis { return s.axis }

// Mesh returns the prepared mesh the session operates on
func (s *Session) Mesh() *mesh.Mesh { return s.prepared }

// SourceLandmarks returns the source landmark set
func (s *Session) SourceLandmarks() *Landmarks { return s.source }

// TargetLandmarks returns a copy of the targets of the last Transform call
func (s *Session) TargetLandmarks() []r3.Vec {
	return append([]r3.Vec(nil), s.target...)
}

// Magnitude returns the magnitude of the last successful Transform call
func (s *Session) Magnitude() float64 { return s.magnitude }

// DistanceToSurface returns the distance from p to the prepared mesh
func (s *Session) DistanceToSurface(p r3.Vec) (float64, error) {
	if !s.state.Active() {
		return 0, ErrNotInitialized
	}
	_, _, d2, err := s.surface.ClosestPoint(p)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(d2), nil
}

// ValidateFiducials checks that every fiducial lies within maxDistance of the
// surface of m. The returned error wraps ErrFiducialTooFar once for every
// offending fiducial.
func ValidateFiducials(fiducials []r3.Vec, m *mesh.Mesh, maxDistance float64) error {
	if len(fiducials) != 2 {
		return fmt.Errorf("%w: got %d", ErrFiducialCount, len(fiducials))
	}
	var errs []error
	for i, f := range fiducials {
		d, err := locator.DistanceToModel(f, m)
		if err != nil {
			return fmt.Errorf("measuring fiducial %d: %w", i, err)
		}
		if d > maxDistance {
			errs = append(errs, fmt.Errorf("%w: fiducial %d is %.3f from the surface (limit %.3f)", ErrFiducialTooFar, i, d, maxDistance))
		}
	}
	return errors.Join(errs...)
}
