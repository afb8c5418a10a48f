// Package stl reads and writes triangle meshes in the STL format.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"osteoplan/pkg/mesh"
)

// ErrFormat is returned for input that is neither binary nor ASCII STL
var ErrFormat = errors.New("stl: unrecognised format")

const (
	headerSize   = 80
	triangleSize = 50
)

// Triangle is one STL facet
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// facet is the binary layout of a Triangle plus its attribute byte count
type facet struct {
	Triangle
	Attribute uint16
}

// SaveToSTL writes triangles to filename as binary STL
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := Write(w, triangles); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write STL file: %w", err)
	}
	return file.Close()
}

// Write encodes triangles as binary STL
func Write(w io.Writer, triangles []Triangle) error {
	var header [headerSize]byte
	copy(header[:], "binary STL written by osteoplan")
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}
	for i := range triangles {
		if err := binary.Write(w, binary.LittleEndian, facet{Triangle: triangles[i]}); err != nil {
			return fmt.Errorf("failed to write triangle %d: %w", i, err)
		}
	}
	return nil
}

// LoadSTL reads a binary or ASCII STL file
func LoadSTL(filename string) ([]Triangle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read STL file: %w", err)
	}
	return Parse(data)
}

// Parse decodes STL data. Binary input is recognised by its size matching
// the triangle count in the header; anything else must be ASCII.
func Parse(data []byte) ([]Triangle, error) {
	var (
		triangles []Triangle
		err       error
	)
	switch {
	case isBinary(data):
		n := binary.LittleEndian.Uint32(data[headerSize:])
		triangles, err = parseBinary(data[headerSize+4:], int(n))
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")):
		triangles, err = parseASCII(data)
	default:
		return nil, ErrFormat
	}
	if err != nil {
		return nil, err
	}

	for i, t := range triangles {
		if !t.isFinite() {
			return nil, fmt.Errorf("%w: triangle %d has a non-finite vertex", ErrFormat, i)
		}
	}
	return triangles, nil
}

// isBinary reports whether the size of data matches the triangle count of a
// binary STL header
func isBinary(data []byte) bool {
	if len(data) < headerSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[headerSize:])
	return uint64(len(data)) == headerSize+4+uint64(n)*triangleSize
}

func parseBinary(data []byte, n int) ([]Triangle, error) {
	triangles := make([]Triangle, n)
	r := bytes.NewReader(data)
	for i := range triangles {
		var f facet
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
		triangles[i] = f.Triangle
	}
	return triangles, nil
}

func parseASCII(data []byte) ([]Triangle, error) {
	var (
		triangles []Triangle
		current   Triangle
		vertices  int
		line      int
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "facet":
			current = Triangle{}
			vertices = 0
			if len(fields) == 5 && strings.EqualFold(fields[1], "normal") {
				v, err := parseVector(fields[2:])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				current.Normal = v
			}
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: %w: vertex needs 3 coordinates", line, ErrFormat)
			}
			v, err := parseVector(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			switch vertices {
			case 0:
				current.Vertex1 = v
			case 1:
				current.Vertex2 = v
			case 2:
				current.Vertex3 = v
			default:
				return nil, fmt.Errorf("line %d: %w: facet has more than 3 vertices", line, ErrFormat)
			}
			vertices++
		case "endfacet":
			if vertices != 3 {
				return nil, fmt.Errorf("line %d: %w: facet has %d vertices", line, ErrFormat, vertices)
			}
			triangles = append(triangles, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ASCII STL: %w", err)
	}
	return triangles, nil
}

func parseVector(fields []string) ([3]float32, error) {
	var v [3]float32
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, fmt.Errorf("invalid coordinate %q: %w", fields[i], err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// FromMesh converts the triangles of m to STL facets with unit normals
func FromMesh(m *mesh.Mesh) []Triangle {
	triangles := make([]Triangle, m.NumCells())
	for i := range m.Triangles {
		t := m.Triangle(i)
		n := t.Normal()
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		triangles[i] = Triangle{
			Normal:  toFloat32(n),
			Vertex1: toFloat32(t[0]),
			Vertex2: toFloat32(t[1]),
			Vertex3: toFloat32(t[2]),
		}
	}
	return triangles
}

// ToMesh returns the facets as an unwelded triangle soup. Use mesh.Prepare or
// Mesh.Clean to merge the shared vertices.
func ToMesh(triangles []Triangle) *mesh.Mesh {
	m := &mesh.Mesh{
		Points:    make([]r3.Vec, 0, 3*len(triangles)),
		Triangles: make([][3]int, len(triangles)),
	}
	for i, t := range triangles {
		base := len(m.Points)
		m.Points = append(m.Points, toVec(t.Vertex1), toVec(t.Vertex2), toVec(t.Vertex3))
		m.Triangles[i] = [3]int{base, base + 1, base + 2}
	}
	return m
}

// LoadMesh reads an STL file and welds it into a mesh
func LoadMesh(filename string) (*mesh.Mesh, error) {
	triangles, err := LoadSTL(filename)
	if err != nil {
		return nil, err
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, mesh.ErrEmptyMesh)
	}
	return ToMesh(triangles).Clean(0)
}

// SaveMesh writes m to filename as binary STL
func SaveMesh(filename string, m *mesh.Mesh) error {
	return SaveToSTL(filename, FromMesh(m))
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func toVec(v [3]float32) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// isFinite reports whether every coordinate of t is a finite number
func (t Triangle) isFinite() bool {
	for _, v := range [][3]float32{t.Vertex1, t.Vertex2, t.Vertex3} {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return false
			}
		}
	}
	return true
}
