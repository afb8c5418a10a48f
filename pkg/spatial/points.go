// Package spatial provides a kd-tree backed point set used for nearest-point
// queries and for merging coincident points.
package spatial

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Point is a 3D point stored in the kd-tree together with the index of the
// point it was built from
type Point struct {
	r3.Vec
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p Point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p Point) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(Point).Vec))
}

// Points is a collection of Point that satisfies kdtree.Interface
type Points []Point

func (p Points) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points) Len() int                              { return len(p) }
func (p Points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{Points: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points
type pointPlane struct {
	Points
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points[i].X < p.Points[j].X
	case 1:
		return p.Points[i].Y < p.Points[j].Y
	case 2:
		return p.Points[i].Z < p.Points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points: p.Points[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points[i], p.Points[j] = p.Points[j], p.Points[i]
}

// PointSet answers nearest-point and radius queries over a fixed point list
type PointSet struct {
	tree *kdtree.Tree
}

// NewPointSet builds a balanced kd-tree over points. The input slice is not
// modified.
func NewPointSet(points []r3.Vec) *PointSet {
	pts := make(Points, len(points))
	for i, p := range points {
		pts[i] = Point{Vec: p, Index: i}
	}
	return &PointSet{tree: kdtree.New(pts, false)}
}

// Len returns the number of points in the set
func (s *PointSet) Len() int {
	if s == nil || s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

// Nearest returns the index of the point closest to q and the squared distance
// to it. ok is false when the set is empty.
func (s *PointSet) Nearest(q r3.Vec) (index int, dist2 float64, ok bool) {
	if s.Len() == 0 {
		return -1, 0, false
	}
	c, d := s.tree.Nearest(Point{Vec: q})
	if c == nil {
		return -1, 0, false
	}
	return c.(Point).Index, d, true
}

// Within returns the indices of all points no farther than radius from q,
// in ascending index order
func (s *PointSet) Within(q r3.Vec, radius float64) []int {
	if s.Len() == 0 || radius < 0 {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	s.tree.NearestSet(keeper, Point{Vec: q})

	indices := make([]int, 0, keeper.Len())
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		indices = append(indices, cd.Comparable.(Point).Index)
	}
	sort.Ints(indices)
	return indices
}

// Merge collapses points lying within tol of an earlier kept point. Points are
// visited in input order and the first point of each cluster is kept, so the
// result is deterministic. It returns the kept points and, for every input
// point, the index of the kept point it was merged into.
func Merge(points []r3.Vec, tol float64) ([]r3.Vec, []int) {
	if tol < 0 {
		tol = 0
	}
	tol2 := tol * tol

	kept := make([]r3.Vec, 0, len(points))
	mapping := make([]int, len(points))
	tree := &kdtree.Tree{}

	for i, p := range points {
		if tree.Root != nil {
			c, d := tree.Nearest(Point{Vec: p})
			if c != nil && d <= tol2 {
				mapping[i] = c.(Point).Index
				continue
			}
		}
		mapping[i] = len(kept)
		tree.Insert(Point{Vec: p, Index: len(kept)}, false)
		kept = append(kept, p)
	}

	return kept, mapping
}
