// Package interpolation fits smooth volumetric warps to pairs of landmark sets.
package interpolation

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Basis selects the radial kernel U(r) of the thin-plate spline
type Basis int

const (
	// R is U(r) = r, the biharmonic kernel for 3D landmarks
	R Basis = iota
	// R2LogR is U(r) = r² log r, the classic 2D thin-plate kernel
	R2LogR
)

var (
	// ErrLandmarkMismatch is returned when source and target sets differ in size
	ErrLandmarkMismatch = errors.New("interpolation: source and target landmark counts differ")
	// ErrNoLandmarks is returned when no landmarks are supplied
	ErrNoLandmarks = errors.New("interpolation: no landmarks")
	// ErrConflictingLandmarks is returned when one source position maps to two different targets
	ErrConflictingLandmarks = errors.New("interpolation: coincident source landmarks with different targets")
	// ErrSingularSystem is returned when the spline system cannot be solved
	ErrSingularSystem = errors.New("interpolation: singular spline system")
)

func (b Basis) String() string {
	switch b {
	case R:
		return "r"
	case R2LogR:
		return "r2logr"
	default:
		return fmt.Sprintf("Basis(%d)", int(b))
	}
}

// ParseBasis converts a basis name into a Basis
func ParseBasis(s string) (Basis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "r":
		return R, nil
	case "r2logr":
		return R2LogR, nil
	default:
		return R, fmt.Errorf("unknown spline basis %q", s)
	}
}

// kernel evaluates U(r)
func (b Basis) kernel(r float64) float64 {
	switch b {
	case R2LogR:
		if r == 0 {
			return 0
		}
		return r * r * math.Log(r)
	default:
		return r
	}
}

// ThinPlateSpline is a landmark-driven warp of 3D space. It maps every source
// landmark onto its target (exactly when sigma is zero) and extends smoothly to
// all other points. A built spline is immutable and safe for concurrent use.
type ThinPlateSpline struct {
	sources []r3.Vec
	// weights holds one row of kernel weights per source landmark followed by
	// the four rows of the affine part, each with x, y and z columns
	weights *mat.Dense
	basis   Basis
	sigma   float64
	// identity is set when every landmark maps onto itself
	identity bool
}

// FitThinPlateSpline fits a spline mapping source[i] onto target[i].
//
// The spline models the displacement target - source, so the warp is the
// identity away from the landmarks' influence and stays well defined when all
// landmarks are coplanar. sigma is added to the diagonal of the kernel matrix;
// zero gives exact interpolation, larger values trade accuracy at the
// landmarks for smoothness. Exactly coincident sources are merged when their
// targets agree.
func FitThinPlateSpline(source, target []r3.Vec, sigma float64, basis Basis) (*ThinPlateSpline, error) {
	if len(source) != len(target) {
		return nil, fmt.Errorf("%w: %d sources, %d targets", ErrLandmarkMismatch, len(source), len(target))
	}
	if len(source) == 0 {
		return nil, ErrNoLandmarks
	}
	if sigma < 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("interpolation: invalid sigma %v", sigma)
	}

	sources, displacements, err := uniqueLandmarks(source, target)
	if err != nil {
		return nil, err
	}

	tps := &ThinPlateSpline{sources: sources, basis: basis, sigma: sigma}
	n := len(sources)

	tps.identity = true
	for _, d := range displacements {
		if d != (r3.Vec{}) {
			tps.identity = false
			break
		}
	}
	if tps.identity {
		tps.weights = mat.NewDense(n+4, 3, nil)
		return tps, nil
	}

	// L = [K+sigma*I P; P' 0] with P rows [1 x y z]
	L := mat.NewDense(n+4, n+4, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			u := basis.kernel(r3.Norm(r3.Sub(sources[i], sources[j])))
			L.Set(i, j, u)
			L.Set(j, i, u)
		}
		L.Set(i, i, basis.kernel(0)+sigma)

		p := sources[i]
		for k, v := range [4]float64{1, p.X, p.Y, p.Z} {
			L.Set(i, n+k, v)
			L.Set(n+k, i, v)
		}
	}

	rhs := mat.NewDense(n+4, 3, nil)
	for i, d := range displacements {
		rhs.Set(i, 0, d.X)
		rhs.Set(i, 1, d.Y)
		rhs.Set(i, 2, d.Z)
	}

	weights, err := solveSystem(L, rhs)
	if err != nil {
		return nil, err
	}
	tps.weights = weights
	return tps, nil
}

// uniqueLandmarks drops repeated source positions and returns the remaining
// sources with their displacements
func uniqueLandmarks(source, target []r3.Vec) ([]r3.Vec, []r3.Vec, error) {
	seen := make(map[r3.Vec]int, len(source))
	sources := make([]r3.Vec, 0, len(source))
	targets := make([]r3.Vec, 0, len(source))
	displacements := make([]r3.Vec, 0, len(source))

	for i, s := range source {
		t := target[i]
		if !finite(s) || !finite(t) {
			return nil, nil, fmt.Errorf("interpolation: landmark %d is not finite", i)
		}
		if j, ok := seen[s]; ok {
			if targets[j] != t {
				return nil, nil, fmt.Errorf("%w: landmark %d at %v", ErrConflictingLandmarks, i, s)
			}
			continue
		}
		seen[s] = len(sources)
		sources = append(sources, s)
		targets = append(targets, t)
		displacements = append(displacements, r3.Sub(t, s))
	}
	return sources, displacements, nil
}

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}

// solveSystem solves L*X = B. QR is tried first; when it reports an
// ill-conditioned system, for example because all landmarks are coplanar and
// the affine block is rank deficient, the minimum-norm SVD solution is used.
func solveSystem(L *mat.Dense, B *mat.Dense) (*mat.Dense, error) {
	var qr mat.QR
	qr.Factorize(L)

	var x mat.Dense
	if err := qr.SolveTo(&x, false, B); err == nil {
		return &x, nil
	}

	var svd mat.SVD
	if !svd.Factorize(L, mat.SVDThin) {
		return nil, fmt.Errorf("%w: SVD did not converge", ErrSingularSystem)
	}
	rank := svd.Rank(1e-12)
	if rank < 1 {
		return nil, ErrSingularSystem
	}

	var y mat.Dense
	svd.SolveTo(&y, B, rank)
	return &y, nil
}

// NumLandmarks returns the number of distinct source landmarks
func (t *ThinPlateSpline) NumLandmarks() int { return len(t.sources) }

// Sigma returns the regularisation the spline was fit with
func (t *ThinPlateSpline) Sigma() float64 { return t.sigma }

// Basis returns the radial kernel of the spline
func (t *ThinPlateSpline) Basis() Basis { return t.basis }

// IsIdentity reports whether the spline maps every point onto itself
func (t *ThinPlateSpline) IsIdentity() bool { return t.identity }

// Apply maps p through the warp
func (t *ThinPlateSpline) Apply(p r3.Vec) r3.Vec {
	if t.identity {
		return p
	}

	n := len(t.sources)
	w := t.weights
	var d r3.Vec
	for i, s := range t.sources {
		u := t.basis.kernel(r3.Norm(r3.Sub(p, s)))
		if u == 0 {
			continue
		}
		d.X += u * w.At(i, 0)
		d.Y += u * w.At(i, 1)
		d.Z += u * w.At(i, 2)
	}
	for k, v := range [4]float64{1, p.X, p.Y, p.Z} {
		d.X += v * w.At(n+k, 0)
		d.Y += v * w.At(n+k, 1)
		d.Z += v * w.At(n+k, 2)
	}
	return r3.Add(p, d)
}

// ApplyAll maps every point through the warp using up to numCores goroutines
// (all cores when numCores <= 0). The input slice is not modified.
func (t *ThinPlateSpline) ApplyAll(points []r3.Vec, numCores int) []r3.Vec {
	out := make([]r3.Vec, len(points))
	if t.identity {
		copy(out, points)
		return out
	}

	if numCores <= 0 {
		numCores = runtime.NumCPU()
	}
	if numCores > len(points) {
		numCores = len(points)
	}
	if numCores <= 1 {
		for i, p := range points {
			out[i] = t.Apply(p)
		}
		return out
	}

	chunk := (len(points) + numCores - 1) / numCores
	var wg sync.WaitGroup
	for start := 0; start < len(points); start += chunk {
		end := start + chunk
		if end > len(points) {
			end = len(points)
		}
		wg.Add(1)
		go func(startIdx, endIdx int) {
			defer wg.Done()
			for i := startIdx; i < endIdx; i++ {
				out[i] = t.Apply(points[i])
			}
		}(start, end)
	}
	wg.Wait()
	return out
}
