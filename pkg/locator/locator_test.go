package locator

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"osteoplan/pkg/geometry"
	"osteoplan/pkg/mesh"

	"gonum.org/v1/gonum/spatial/r3"
)

// wavySheet returns an n by n grid with a smooth height field
func wavySheet(n int, spacing float64) *mesh.Mesh {
	m := &mesh.Mesh{}
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x, y := float64(i)*spacing, float64(j)*spacing
			m.Points = append(m.Points, r3.Vec{X: x, Y: y, Z: math.Sin(x/5) * math.Cos(y/7) * 3})
		}
	}
	id := func(i, j int) int { return j*(n+1) + i }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			a, b, c, d := id(i, j), id(i+1, j), id(i+1, j+1), id(i, j+1)
			m.Triangles = append(m.Triangles, [3]int{a, b, c}, [3]int{a, c, d})
		}
	}
	m.ComputeNormals()
	return m
}

func bruteForce(m *mesh.Mesh, q r3.Vec) (int, float64) {
	best, bestID := math.Inf(1), -1
	for i := range m.Triangles {
		p := geometry.ClosestPointOnTriangle(m.Triangle(i), q)
		if d := r3.Norm2(r3.Sub(p, q)); d < best {
			best, bestID = d, i
		}
	}
	return bestID, best
}

// TestClosestPointMatchesBruteForce compares the locator with a linear scan
func TestClosestPointMatchesBruteForce(t *testing.T) {
	m := wavySheet(20, 1.5)
	loc, err := New(m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if loc.NumCells() != m.NumCells() {
		t.Fatalf("Expected %d cells, got %d", m.NumCells(), loc.NumCells())
	}

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		q := r3.Vec{X: rng.Float64()*40 - 5, Y: rng.Float64()*40 - 5, Z: rng.Float64()*20 - 10}
		p, id, d2, err := loc.ClosestPoint(q)
		if err != nil {
			t.Fatalf("ClosestPoint failed: %v", err)
		}

		_, want := bruteForce(m, q)
		if math.Abs(d2-want) > 1e-9 {
			t.Errorf("Query %v: expected squared distance %f, got %f (cell %d)", q, want, d2, id)
		}
		if math.Abs(r3.Norm2(r3.Sub(p, q))-d2) > 1e-9 {
			t.Errorf("Returned point does not match returned distance")
		}
	}
}

func TestClosestPointOnSurface(t *testing.T) {
	m := wavySheet(10, 2)
	loc, err := New(m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, v := range m.Points {
		p, _, d2, err := loc.ClosestPoint(v)
		if err != nil {
			t.Fatalf("ClosestPoint failed: %v", err)
		}
		if d2 > 1e-18 || r3.Norm(r3.Sub(p, v)) > 1e-9 {
			t.Errorf("Vertex %v should project onto itself, got %v", v, p)
		}
	}
}

func TestPolylineLocator(t *testing.T) {
	m := wavySheet(10, 2)
	plane := geometry.Plane{Origin: r3.Vec{X: 7.3}, Normal: r3.Vec{X: 1}}
	cut := m.Cut(plane)

	loc, err := NewFromPolyline(cut)
	if err != nil {
		t.Fatalf("NewFromPolyline failed: %v", err)
	}

	q := r3.Vec{X: 12, Y: 9, Z: 10}
	p, id, _, err := loc.ClosestPoint(q)
	if err != nil {
		t.Fatalf("ClosestPoint failed: %v", err)
	}
	if math.Abs(plane.Evaluate(p)) > 1e-9 {
		t.Errorf("Closest point %v should lie on the cut plane", p)
	}

	best := math.Inf(1)
	for i := range cut.Segments {
		a, b := cut.Segment(i)
		best = math.Min(best, r3.Norm2(r3.Sub(geometry.ClosestPointOnSegment(a, b, q), q)))
	}
	if _, _, d2, _ := loc.ClosestPoint(q); math.Abs(d2-best) > 1e-9 {
		t.Errorf("Expected squared distance %f, got %f (segment %d)", best, d2, id)
	}
}

func TestEmptyLocator(t *testing.T) {
	if _, err := New(&mesh.Mesh{}); !errors.Is(err, ErrEmptyLocator) {
		t.Errorf("Expected ErrEmptyLocator from empty mesh, got %v", err)
	}
	if _, err := NewFromPolyline(&mesh.Polyline{}); !errors.Is(err, ErrEmptyLocator) {
		t.Errorf("Expected ErrEmptyLocator from empty polyline, got %v", err)
	}

	var loc *Locator
	if _, _, _, err := loc.ClosestPoint(r3.Vec{}); !errors.Is(err, ErrEmptyLocator) {
		t.Errorf("Expected ErrEmptyLocator from nil locator, got %v", err)
	}
}

func TestNormalAt(t *testing.T) {
	m := wavySheet(10, 2)
	loc, err := New(m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	q := r3.Vec{X: 5.2, Y: 7.9, Z: 20}
	n, err := NormalAt(q, loc, m)
	if err != nil {
		t.Fatalf("NormalAt failed: %v", err)
	}
	_, id, _, _ := loc.ClosestPoint(q)
	if n != m.CellNormals[id] {
		t.Errorf("Expected the flat normal of cell %d", id)
	}
	if math.Abs(r3.Norm(n)-1) > 1e-12 {
		t.Errorf("Normal %v is not unit length", n)
	}

	bare := mesh.New(m.Points, m.Triangles)
	if _, err := NormalAt(q, loc, bare); !errors.Is(err, ErrNoNormals) {
		t.Errorf("Expected ErrNoNormals, got %v", err)
	}

	small := wavySheet(3, 2)
	if _, err := NormalAt(q, loc, small); !errors.Is(err, ErrCellMismatch) {
		t.Errorf("Expected ErrCellMismatch, got %v", err)
	}
}

func TestDistanceToModel(t *testing.T) {
	m := mesh.New(
		[]r3.Vec{{X: -10, Y: -10}, {X: 10, Y: -10}, {X: 10, Y: 10}, {X: -10, Y: 10}},
		[][3]int{{0, 1, 2}, {0, 2, 3}},
	)

	tests := []struct {
		name string
		p    r3.Vec
		want float64
	}{
		{"above", r3.Vec{X: 1, Y: 2, Z: 4}, 4},
		{"below", r3.Vec{Z: -2.5}, 2.5},
		{"outside corner", r3.Vec{X: 13, Y: 14}, 5},
		{"on surface", r3.Vec{X: 3, Y: -3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DistanceToModel(tt.p, m)
			if err != nil {
				t.Fatalf("DistanceToModel failed: %v", err)
			}
			if math.Abs(d-tt.want) > 1e-9 {
				t.Errorf("Expected %f, got %f", tt.want, d)
			}
		})
	}

	if _, err := DistanceToModel(r3.Vec{}, &mesh.Mesh{}); !errors.Is(err, ErrEmptyLocator) {
		t.Errorf("Expected ErrEmptyLocator, got %v", err)
	}
}
