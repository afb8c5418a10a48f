package landmarks

import (
	"errors"
	"math"
	"testing"

	"osteoplan/pkg/mesh"

	"gonum.org/v1/gonum/spatial/r3"
)

// dome returns a triangulated hemisphere-like cap of the given radius
func dome(radius float64, rings, segments int) *mesh.Mesh {
	m := &mesh.Mesh{Points: []r3.Vec{{Z: radius}}}
	for r := 1; r <= rings; r++ {
		theta := float64(r) / float64(rings) * math.Pi / 2
		for s := 0; s < segments; s++ {
			phi := float64(s) / float64(segments) * 2 * math.Pi
			m.Points = append(m.Points, r3.Vec{
				X: radius * math.Sin(theta) * math.Cos(phi),
				Y: radius * math.Sin(theta) * math.Sin(phi),
				Z: radius * math.Cos(theta),
			})
		}
	}
	ring := func(r, s int) int { return 1 + (r-1)*segments + (s % segments) }
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
	return m
}

func TestSampleSpacing(t *testing.T) {
	m := dome(20, 12, 48)
	s := NewSampler()

	samples, err := s.Sample(m)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(samples) == 0 || len(samples) >= m.NumPoints() {
		t.Fatalf("Expected a decimated point set, got %d of %d", len(samples), m.NumPoints())
	}

	dist := s.Distance(m)
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			if r3.Norm(r3.Sub(samples[i], samples[j])) <= dist {
				t.Fatalf("Samples %d and %d are closer than %f", i, j, dist)
			}
		}
	}

	// Every vertex is represented by a sample within the merge distance
	for i, p := range m.Points {
		covered := false
		for _, q := range samples {
			if r3.Norm(r3.Sub(p, q)) <= dist {
				covered = true
				break
			}
		}
		if !covered {
			t.Errorf("Vertex %d is not covered by any sample", i)
		}
	}
}

func TestSampleDeterministic(t *testing.T) {
	m := dome(10, 8, 32)
	s := NewSampler()

	first, err := s.Sample(m)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	second, _ := s.Sample(m)
	if len(first) != len(second) {
		t.Fatalf("Sample sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Sample %d differs between runs", i)
		}
	}
}

func TestSampleAbsolute(t *testing.T) {
	m := dome(10, 8, 32)

	zero := &Sampler{Tolerance: 0, Absolute: true}
	all, err := zero.Sample(m)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(all) != m.NumPoints() {
		t.Errorf("Zero tolerance should keep all %d vertices, got %d", m.NumPoints(), len(all))
	}

	coarse := &Sampler{Tolerance: 100, Absolute: true}
	one, _ := coarse.Sample(m)
	if len(one) != 1 || one[0] != m.Points[0] {
		t.Errorf("Huge tolerance should keep only the first vertex, got %d samples", len(one))
	}
}

func TestSampleErrors(t *testing.T) {
	if _, err := (&Sampler{Tolerance: -1}).Sample(dome(5, 2, 8)); !errors.Is(err, ErrInvalidTolerance) {
		t.Errorf("Expected ErrInvalidTolerance, got %v", err)
	}
	if _, err := NewSampler().Sample(&mesh.Mesh{}); !errors.Is(err, mesh.ErrEmptyMesh) {
		t.Errorf("Expected ErrEmptyMesh, got %v", err)
	}
}
