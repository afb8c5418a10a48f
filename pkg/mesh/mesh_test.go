package mesh

import (
	"errors"
	"math"
	"testing"

	"osteoplan/pkg/geometry"

	"gonum.org/v1/gonum/spatial/r3"
)

// unitCube returns a closed unit cube with outward winding
func unitCube() *Mesh {
	points := []r3.Vec{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
	}
	triangles := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // bottom
		{4, 5, 6}, {4, 6, 7}, // top
		{0, 1, 5}, {0, 5, 4}, // front
		{3, 7, 6}, {3, 6, 2}, // back
		{0, 4, 7}, {0, 7, 3}, // left
		{1, 2, 6}, {1, 6, 5}, // right
	}
	return New(points, triangles)
}

// grid returns an n by n unit grid in the z=0 plane wound towards +z
func grid(n int) *Mesh {
	m := &Mesh{}
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.Points = append(m.Points, r3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	id := func(i, j int) int { return j*(n+1) + i }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			a, b, c, d := id(i, j), id(i+1, j), id(i+1, j+1), id(i, j+1)
			m.Triangles = append(m.Triangles, [3]int{a, b, c}, [3]int{a, c, d})
		}
	}
	return m
}

func TestAreaAndVolume(t *testing.T) {
	cube := unitCube()
	if a := cube.Area(); math.Abs(a-6) > 1e-12 {
		t.Errorf("Expected area 6, got %f", a)
	}
	if v := cube.Volume(); math.Abs(v-1) > 1e-12 {
		t.Errorf("Expected volume 1, got %f", v)
	}
	if a := grid(4).Area(); math.Abs(a-16) > 1e-12 {
		t.Errorf("Expected grid area 16, got %f", a)
	}
}

func TestValidate(t *testing.T) {
	if err := (&Mesh{}).Validate(); !errors.Is(err, ErrEmptyMesh) {
		t.Errorf("Expected ErrEmptyMesh, got %v", err)
	}

	bad := New([]r3.Vec{{}, {X: 1}}, [][3]int{{0, 1, 2}})
	if err := bad.Validate(); !errors.Is(err, ErrInvalidMesh) {
		t.Errorf("Expected ErrInvalidMesh for out of range index, got %v", err)
	}

	nan := New([]r3.Vec{{}, {X: 1}, {Y: math.NaN()}}, [][3]int{{0, 1, 2}})
	if err := nan.Validate(); !errors.Is(err, ErrInvalidMesh) {
		t.Errorf("Expected ErrInvalidMesh for NaN point, got %v", err)
	}
}

// TestCleanTriangleSoup verifies duplicated vertices are welded
func TestCleanTriangleSoup(t *testing.T) {
	src := grid(3)
	soup := &Mesh{}
	for i := range src.Triangles {
		tri := src.Triangle(i)
		base := len(soup.Points)
		soup.Points = append(soup.Points, tri[0], tri[1], tri[2])
		soup.Triangles = append(soup.Triangles, [3]int{base, base + 1, base + 2})
	}

	cleaned, err := soup.Clean(0)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if cleaned.NumPoints() != 16 {
		t.Errorf("Expected 16 welded points, got %d", cleaned.NumPoints())
	}
	if cleaned.NumCells() != 18 {
		t.Errorf("Expected 18 triangles, got %d", cleaned.NumCells())
	}
	if math.Abs(cleaned.Area()-9) > 1e-12 {
		t.Errorf("Cleaning changed the area: %f", cleaned.Area())
	}
}

// TestCleanDropsDegenerate verifies degenerate, duplicate and unused geometry is removed
func TestCleanDropsDegenerate(t *testing.T) {
	m := New(
		[]r3.Vec{{}, {X: 1}, {Y: 1}, {X: 2}, {X: 5, Y: 5}},
		[][3]int{
			{0, 1, 2},
			{2, 1, 0}, // duplicate with other winding
			{0, 1, 3}, // collinear
			{0, 0, 2}, // repeated index
		},
	)

	cleaned, err := m.Clean(0)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if cleaned.NumCells() != 1 {
		t.Errorf("Expected 1 triangle, got %d", cleaned.NumCells())
	}
	if cleaned.NumPoints() != 3 {
		t.Errorf("Expected 3 points, got %d", cleaned.NumPoints())
	}

	allBad := New([]r3.Vec{{}, {X: 1}, {X: 2}}, [][3]int{{0, 1, 2}})
	if _, err := allBad.Clean(0); !errors.Is(err, ErrEmptyMesh) {
		t.Errorf("Expected ErrEmptyMesh, got %v", err)
	}
}

// TestOrientClosed verifies a scrambled cube ends up with outward normals
func TestOrientClosed(t *testing.T) {
	cube := unitCube()
	for _, i := range []int{0, 3, 5, 6, 11} {
		cube.flip(i)
	}
	cube.ComputeNormals()

	if v := cube.Volume(); math.Abs(v-1) > 1e-12 {
		t.Errorf("Expected positive unit volume after orientation, got %f", v)
	}

	center := r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	for i := range cube.Triangles {
		out := r3.Sub(cube.Triangle(i).Centroid(), center)
		if r3.Dot(cube.CellNormals[i], out) <= 0 {
			t.Errorf("Cell %d normal %v points inward", i, cube.CellNormals[i])
		}
		if math.Abs(r3.Norm(cube.CellNormals[i])-1) > 1e-12 {
			t.Errorf("Cell %d normal is not unit", i)
		}
	}
	for i, n := range cube.PointNormals {
		if r3.Dot(n, r3.Sub(cube.Points[i], center)) <= 0 {
			t.Errorf("Point %d normal %v points inward", i, n)
		}
	}
}

// TestOrientInvertedClosed verifies a fully inverted closed surface is flipped
func TestOrientInvertedClosed(t *testing.T) {
	cube := unitCube()
	for i := range cube.Triangles {
		cube.flip(i)
	}
	if flipped := cube.Orient(); flipped != 12 {
		t.Errorf("Expected 12 flipped triangles, got %d", flipped)
	}
	if cube.Volume() <= 0 {
		t.Error("Expected positive volume")
	}
}

// TestOrientOpen verifies open surfaces follow the winding of their first triangle
func TestOrientOpen(t *testing.T) {
	m := grid(4)
	for i := 1; i < len(m.Triangles); i += 3 {
		m.flip(i)
	}
	m.ComputeNormals()

	for i, n := range m.CellNormals {
		if math.Abs(n.Z-1) > 1e-12 {
			t.Errorf("Cell %d normal %v does not point to +z", i, n)
		}
	}
	for i, n := range m.PointNormals {
		if math.Abs(n.Z-1) > 1e-12 {
			t.Errorf("Point %d normal %v does not point to +z", i, n)
		}
	}
}

func TestPrepareLeavesInputUntouched(t *testing.T) {
	m := unitCube()
	m.flip(2)
	before := m.Clone()

	prepared, err := Prepare(m)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !prepared.HasNormals() {
		t.Error("Prepared mesh should carry normals")
	}
	for i := range m.Triangles {
		if m.Triangles[i] != before.Triangles[i] {
			t.Fatalf("Prepare modified triangle %d of the input", i)
		}
	}
	if m.PointNormals != nil || m.CellNormals != nil {
		t.Error("Prepare should not add normals to the input")
	}
}

func TestCut(t *testing.T) {
	tests := []struct {
		name   string
		mesh   *Mesh
		plane  geometry.Plane
		length float64
	}{
		{"cube mid height", unitCube(), geometry.Plane{Origin: r3.Vec{Z: 0.5}, Normal: r3.Vec{Z: 1}}, 4},
		{"grid between vertices", grid(4), geometry.Plane{Origin: r3.Vec{X: 0.5}, Normal: r3.Vec{X: 1}}, 4},
		{"grid through vertices", grid(4), geometry.Plane{Origin: r3.Vec{X: 1}, Normal: r3.Vec{X: 1}}, 4},
		{"grid diagonal", grid(4), geometry.Plane{Origin: r3.Vec{}, Normal: r3.Vec{X: math.Sqrt2 / 2, Y: -math.Sqrt2 / 2}}, 4 * math.Sqrt2},
		{"miss", unitCube(), geometry.Plane{Origin: r3.Vec{Z: 5}, Normal: r3.Vec{Z: 1}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cut := tt.mesh.Cut(tt.plane)
			if l := cut.Length(); math.Abs(l-tt.length) > 1e-9 {
				t.Errorf("Expected cut length %f, got %f (%d segments)", tt.length, l, cut.NumCells())
			}
			for i := range cut.Segments {
				a, b := cut.Segment(i)
				if math.Abs(tt.plane.Evaluate(a)) > 1e-9 || math.Abs(tt.plane.Evaluate(b)) > 1e-9 {
					t.Errorf("Segment %d does not lie in the plane", i)
				}
			}
		})
	}
}

func TestWithPoints(t *testing.T) {
	m := grid(2)
	moved := make([]r3.Vec, len(m.Points))
	for i, p := range m.Points {
		moved[i] = r3.Add(p, r3.Vec{Z: 3})
	}

	out, err := m.WithPoints(moved)
	if err != nil {
		t.Fatalf("WithPoints failed: %v", err)
	}
	if out.Points[0].Z != 3 || m.Points[0].Z != 0 {
		t.Error("WithPoints should copy the new positions without touching the source")
	}
	if !out.HasNormals() {
		t.Error("WithPoints should compute normals")
	}

	if _, err := m.WithPoints(moved[:2]); !errors.Is(err, ErrInvalidMesh) {
		t.Errorf("Expected ErrInvalidMesh, got %v", err)
	}
}
