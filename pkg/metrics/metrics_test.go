package metrics

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"osteoplan/pkg/mesh"
	"osteoplan/pkg/phantom"
)

func testDisc(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := phantom.Disc(20, 4, 16)
	if err != nil {
		t.Fatalf("Disc failed: %v", err)
	}
	return m
}

func translated(t *testing.T, m *mesh.Mesh, offset r3.Vec) *mesh.Mesh {
	t.Helper()
	points := make([]r3.Vec, m.NumPoints())
	for i, p := range m.Points {
		points[i] = r3.Add(p, offset)
	}
	out, err := m.WithPoints(points)
	if err != nil {
		t.Fatalf("WithPoints failed: %v", err)
	}
	return out
}

func TestModelToModelDistance(t *testing.T) {
	disc := testDisc(t)

	tests := []struct {
		name   string
		offset r3.Vec
		signed bool
		want   float64
	}{
		{"identical", r3.Vec{}, false, 0},
		{"above", r3.Vec{Z: 1.5}, false, 1.5},
		{"below unsigned", r3.Vec{Z: -2}, false, 2},
		{"above signed", r3.Vec{Z: 1.5}, true, 1.5},
		{"below signed", r3.Vec{Z: -2}, true, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := translated(t, disc, tt.offset)
			d, err := ModelToModelDistance(from, disc, tt.signed, 3)
			if err != nil {
				t.Fatalf("ModelToModelDistance failed: %v", err)
			}
			if len(d) != from.NumPoints() {
				t.Fatalf("Expected %d distances, got %d", from.NumPoints(), len(d))
			}
			for i, v := range d {
				if math.Abs(v-tt.want) > 1e-9 {
					t.Fatalf("Point %d: expected distance %f, got %f", i, tt.want, v)
				}
			}
		})
	}
}

func TestModelToModelDistanceCores(t *testing.T) {
	disc := testDisc(t)
	from := translated(t, disc, r3.Vec{X: 3, Y: -1, Z: 0.5})

	serial, err := ModelToModelDistance(from, disc, true, 1)
	if err != nil {
		t.Fatalf("ModelToModelDistance failed: %v", err)
	}
	for _, cores := range []int{0, 2, 7, 1000} {
		parallel, err := ModelToModelDistance(from, disc, true, cores)
		if err != nil {
			t.Fatalf("ModelToModelDistance with %d cores failed: %v", cores, err)
		}
		for i := range serial {
			if serial[i] != parallel[i] {
				t.Fatalf("%d cores: distance %d differs", cores, i)
			}
		}
	}
}

func TestModelToModelDistanceErrors(t *testing.T) {
	disc := testDisc(t)

	if _, err := ModelToModelDistance(&mesh.Mesh{}, disc, false, 1); !errors.Is(err, ErrNoPoints) {
		t.Errorf("Expected ErrNoPoints, got %v", err)
	}

	bare := mesh.New(disc.Points, disc.Triangles)
	if _, err := ModelToModelDistance(disc, bare, true, 1); err == nil {
		t.Error("Expected an error for a signed distance without normals")
	}
	if _, err := ModelToModelDistance(disc, bare, false, 1); err != nil {
		t.Errorf("Unsigned distance should not need normals, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	disc := testDisc(t)
	after := translated(t, disc, r3.Vec{Z: 0.25})

	m, err := Compare(disc, after, 2)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if math.Abs(m.AreaBefore-m.AreaAfter) > 1e-9 {
		t.Errorf("Translation changed the area: %f -> %f", m.AreaBefore, m.AreaAfter)
	}
	for name, v := range map[string]float64{
		"mean": m.MeanDistance,
		"rms":  m.RMSDistance,
		"max":  m.MaxDistance,
		"p95":  m.P95Distance,
	} {
		if math.Abs(v-0.25) > 1e-9 {
			t.Errorf("Expected %s distance 0.25, got %f", name, v)
		}
	}
	if m.StdDistance > 1e-9 {
		t.Errorf("Expected zero spread, got %f", m.StdDistance)
	}
	if !m.HasDisplacement || math.Abs(m.MeanDisplacement-0.25) > 1e-9 || math.Abs(m.MaxDisplacement-0.25) > 1e-9 {
		t.Errorf("Unexpected displacement: %+v", m)
	}
	if m.String() == "" {
		t.Error("Expected a report")
	}
}

func TestCompareDifferentTopology(t *testing.T) {
	disc := testDisc(t)
	coarse, err := phantom.Disc(20, 2, 8)
	if err != nil {
		t.Fatalf("Disc failed: %v", err)
	}

	m, err := Compare(disc, coarse, 1)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if m.HasDisplacement {
		t.Error("Displacement needs matching vertex order")
	}
	// The coarse polygon lies inside the fine one in the same plane
	if m.MaxDistance > 1e-9 {
		t.Errorf("Expected coplanar meshes, got max distance %f", m.MaxDistance)
	}
	if m.AreaAfter >= m.AreaBefore {
		t.Errorf("Expected the coarse disc to be smaller: %f >= %f", m.AreaAfter, m.AreaBefore)
	}
}

func TestSummarize(t *testing.T) {
	mean, rms, peak, std, p95 := summarize([]float64{-3, 4})
	if mean != 3.5 || peak != 4 || p95 != 4 {
		t.Errorf("Unexpected mean %f, max %f, p95 %f", mean, peak, p95)
	}
	if math.Abs(rms-math.Sqrt(12.5)) > 1e-12 {
		t.Errorf("Expected rms %f, got %f", math.Sqrt(12.5), rms)
	}
	if math.Abs(std-0.5) > 1e-12 {
		t.Errorf("Expected population std 0.5, got %f", std)
	}
}
