package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/llgcode/draw2d/draw2dimg"
	"gonum.org/v1/gonum/spatial/r3"

	"osteoplan/pkg/geometry"
	"osteoplan/pkg/mesh"
)

// ErrNoLayers is returned when a section is requested from an empty viewer
var ErrNoLayers = errors.New("visualization: no meshes to section")

// Default layer colours: the original model in blue, the bent model in red
var (
	BeforeColor = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	AfterColor  = color.RGBA{R: 210, G: 40, B: 40, A: 255}
)

type layer struct {
	mesh  *mesh.Mesh
	color color.Color
}

// Viewer renders planar cross sections of one or more meshes on top of each
// other, so a bent model can be compared with the original.
type Viewer struct {
	layers []layer

	// size is the width and height of rendered images in pixels
	size int

	// lineWidth is the contour stroke width in pixels
	lineWidth float64

	// bounds covers every layer and fixes the view for all sections
	bounds r3.Box
}

// NewViewer creates a viewer rendering square images of size pixels
func NewViewer(size int) *Viewer {
	if size < 16 {
		size = 16
	}
	return &Viewer{size: size, lineWidth: 2}
}

// AddMesh adds m as a layer drawn in c. Layers are drawn in insertion order.
func (v *Viewer) AddMesh(m *mesh.Mesh, c color.Color) {
	v.layers = append(v.layers, layer{mesh: m, color: c})

	var points []r3.Vec
	for _, l := range v.layers {
		points = append(points, l.mesh.Points...)
	}
	v.bounds = geometry.Bounds(points)
}

// Bounds returns the box enclosing every layer
func (v *Viewer) Bounds() r3.Box { return v.bounds }

// axisIndex maps "x", "y" or "z" to the section normal and the two in-plane
// coordinate accessors used for drawing
func axisIndex(axis string) (normal r3.Vec, u, w func(r3.Vec) float64, err error) {
	x := func(p r3.Vec) float64 { return p.X }
	y := func(p r3.Vec) float64 { return p.Y }
	z := func(p r3.Vec) float64 { return p.Z }

	switch strings.ToLower(axis) {
	case "x":
		return r3.Vec{X: 1}, y, z, nil
	case "y":
		return r3.Vec{Y: 1}, x, z, nil
	case "z":
		return r3.Vec{Z: 1}, x, y, nil
	default:
		return r3.Vec{}, nil, nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// Range returns the extent of the layers along axis
func (v *Viewer) Range(axis string) (lo, hi float64, err error) {
	normal, _, _, err := axisIndex(axis)
	if err != nil {
		return 0, 0, err
	}
	return r3.Dot(v.bounds.Min, normal), r3.Dot(v.bounds.Max, normal), nil
}

// ExtractSection cuts every layer with the plane perpendicular to axis at
// position and draws the contours
func (v *Viewer) ExtractSection(axis string, position float64) (image.Image, error) {
	if len(v.layers) == 0 {
		return nil, ErrNoLayers
	}
	normal, u, w, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	lo, hi, _ := v.Range(axis)
	if position < lo || position > hi {
		return nil, fmt.Errorf("position %g outside [%g, %g] along %s", position, lo, hi, axis)
	}

	plane, err := geometry.NewPlane(r3.Scale(position, normal), normal)
	if err != nil {
		return nil, err
	}

	// A common scale for both in-plane axes keeps the section undistorted
	uMin, uMax := u(v.bounds.Min), u(v.bounds.Max)
	wMin, wMax := w(v.bounds.Min), w(v.bounds.Max)
	extent := math.Max(uMax-uMin, wMax-wMin)
	if extent <= 0 {
		extent = 1
	}
	margin := 0.05 * float64(v.size)
	scale := (float64(v.size) - 2*margin) / extent
	uOff := margin + 0.5*(float64(v.size)-2*margin-scale*(uMax-uMin))
	wOff := margin + 0.5*(float64(v.size)-2*margin-scale*(wMax-wMin))
	toPixel := func(p r3.Vec) (float64, float64) {
		px := uOff + scale*(u(p)-uMin)
		py := float64(v.size) - (wOff + scale*(w(p)-wMin))
		return px, py
	}

	img := image.NewRGBA(image.Rect(0, 0, v.size, v.size))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	gc := draw2dimg.NewGraphicContext(img)
	gc.SetLineWidth(v.lineWidth)
	for _, l := range v.layers {
		contour := l.mesh.Cut(plane)
		if contour.NumCells() == 0 {
			continue
		}
		gc.SetStrokeColor(l.color)
		gc.BeginPath()
		for i := range contour.Segments {
			a, b := contour.Segment(i)
			ax, ay := toPixel(a)
			bx, by := toPixel(b)
			gc.MoveTo(ax, ay)
			gc.LineTo(bx, by)
		}
		gc.Stroke()
	}

	return img, nil
}

// SaveSection saves a rendered section as a PNG image
func (v *Viewer) SaveSection(img image.Image, filename string) error {
	return SavePNG(img, filename)
}

// SavePNG writes img to filename
func SavePNG(img image.Image, filename string) error {
	return draw2dimg.SaveToPngFile(filename, img)
}

// SaveSectionSequence renders count evenly spaced sections along axis into
// outputDir
func (v *Viewer) SaveSectionSequence(axis string, count int, outputDir string) error {
	if count < 1 {
		return fmt.Errorf("section count must be positive, got %d", count)
	}
	lo, hi, err := v.Range(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	step := (hi - lo) / float64(count)
	for i := 0; i < count; i++ {
		img, err := v.ExtractSection(axis, lo+(float64(i)+0.5)*step)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("section_%s_%03d.png", axis, i))
		if err := v.SaveSection(img, filename); err != nil {
			return err
		}
	}

	return nil
}
