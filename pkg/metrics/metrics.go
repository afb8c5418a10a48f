// Package metrics compares a bent model with the model it was bent from.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"osteoplan/pkg/locator"
	"osteoplan/pkg/mesh"
)

// ErrNoPoints is returned when the measured mesh has no points
var ErrNoPoints = errors.New("mesh has no points to measure")

// ShapeMetrics holds the pre/post comparison of a bend.
type ShapeMetrics struct {
	// Surface area and enclosed volume before and after the bend. The volume
	// is only meaningful for closed meshes.
	AreaBefore   float64 `yaml:"areaBefore"`
	AreaAfter    float64 `yaml:"areaAfter"`
	VolumeBefore float64 `yaml:"volumeBefore"`
	VolumeAfter  float64 `yaml:"volumeAfter"`

	// Statistics of the absolute distance from every vertex of the bent mesh
	// to the surface of the original
	MeanDistance float64 `yaml:"meanDistance"`
	RMSDistance  float64 `yaml:"rmsDistance"`
	MaxDistance  float64 `yaml:"maxDistance"`
	StdDistance  float64 `yaml:"stdDistance"`
	P95Distance  float64 `yaml:"p95Distance"`

	// Vertex displacement, set when both meshes share their vertex order
	HasDisplacement  bool    `yaml:"hasDisplacement"`
	MeanDisplacement float64 `yaml:"meanDisplacement"`
	MaxDisplacement  float64 `yaml:"maxDisplacement"`
}

// ModelToModelDistance returns, for every point of from, the distance to the
// closest point on the surface of to. When signed is set the distance is
// negative for points behind the closest cell of to, as given by its cell
// normal. Work is split over numCores goroutines.
func ModelToModelDistance(from, to *mesh.Mesh, signed bool, numCores int) ([]float64, error) {
	if from == nil || from.NumPoints() == 0 {
		return nil, ErrNoPoints
	}
	if to == nil {
		return nil, mesh.ErrEmptyMesh
	}
	if signed && !to.HasNormals() {
		return nil, fmt.Errorf("signed distance: %w", locator.ErrNoNormals)
	}
	loc, err := locator.New(to)
	if err != nil {
		return nil, fmt.Errorf("building locator: %w", err)
	}

	n := from.NumPoints()
	if numCores < 1 {
		numCores = 1
	}
	if numCores > n {
		numCores = n
	}

	distances := make([]float64, n)
	errs := make([]error, numCores)
	chunk := (n + numCores - 1) / numCores

	var wg sync.WaitGroup
	for w := 0; w < numCores; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				p := from.Points[i]
				closest, cell, d2, err := loc.ClosestPoint(p)
				if err != nil {
					errs[worker] = fmt.Errorf("point %d: %w", i, err)
					return
				}
				d := math.Sqrt(d2)
				if signed && r3.Dot(r3.Sub(p, closest), to.CellNormals[cell]) < 0 {
					d = -d
				}
				distances[i] = d
			}
		}(w, start, end)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return distances, nil
}

// Compare measures how far after has moved away from before.
func Compare(before, after *mesh.Mesh, numCores int) (*ShapeMetrics, error) {
	if before == nil || after == nil {
		return nil, fmt.Errorf("compare: %w", mesh.ErrEmptyMesh)
	}

	distances, err := ModelToModelDistance(after, before, false, numCores)
	if err != nil {
		return nil, fmt.Errorf("surface distance: %w", err)
	}

	m := &ShapeMetrics{
		AreaBefore:   before.Area(),
		AreaAfter:    after.Area(),
		VolumeBefore: math.Abs(before.Volume()),
		VolumeAfter:  math.Abs(after.Volume()),
	}
	m.MeanDistance, m.RMSDistance, m.MaxDistance, m.StdDistance, m.P95Distance = summarize(distances)

	if before.NumPoints() == after.NumPoints() {
		moved := make([]float64, before.NumPoints())
		for i := range moved {
			moved[i] = r3.Norm(r3.Sub(after.Points[i], before.Points[i]))
		}
		m.HasDisplacement = true
		m.MeanDisplacement = stat.Mean(moved, nil)
		m.MaxDisplacement = floats.Max(moved)
	}

	return m, nil
}

// summarize returns mean, root mean square, maximum, standard deviation and
// 95th percentile of the absolute values
func summarize(values []float64) (mean, rms, peak, std, p95 float64) {
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}
	sort.Float64s(abs)

	mean, std = stat.PopMeanStdDev(abs, nil)
	rms = math.Sqrt(floats.Dot(abs, abs) / float64(len(abs)))
	peak = abs[len(abs)-1]
	p95 = stat.Quantile(0.95, stat.Empirical, abs, nil)
	return mean, rms, peak, std, p95
}

// String formats the metrics for the command line report
func (m *ShapeMetrics) String() string {
	s := fmt.Sprintf("Area:   %.3f -> %.3f (%+.2f%%)\n", m.AreaBefore, m.AreaAfter, percent(m.AreaBefore, m.AreaAfter))
	s += fmt.Sprintf("Volume: %.3f -> %.3f (%+.2f%%)\n", m.VolumeBefore, m.VolumeAfter, percent(m.VolumeBefore, m.VolumeAfter))
	s += fmt.Sprintf("Surface distance: mean %.4f, RMS %.4f, std %.4f, p95 %.4f, max %.4f\n",
		m.MeanDistance, m.RMSDistance, m.StdDistance, m.P95Distance, m.MaxDistance)
	if m.HasDisplacement {
		s += fmt.Sprintf("Vertex displacement: mean %.4f, max %.4f\n", m.MeanDisplacement, m.MaxDisplacement)
	}
	return s
}

func percent(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return 100 * (after - before) / before
}
