package mesh

import (
	"osteoplan/pkg/geometry"

	"gonum.org/v1/gonum/spatial/r3"
)

type edgeKey [2]int

func makeEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// edgeMap maps each undirected edge to the triangles using it
func (m *Mesh) edgeMap() map[edgeKey][]int {
	edges := make(map[edgeKey][]int, len(m.Triangles)*3/2)
	for i, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			key := makeEdgeKey(t[k], t[(k+1)%3])
			edges[key] = append(edges[key], i)
		}
	}
	return edges
}

// hasDirectedEdge reports whether triangle t traverses a then b
func hasDirectedEdge(t [3]int, a, b int) bool {
	for k := 0; k < 3; k++ {
		if t[k] == a && t[(k+1)%3] == b {
			return true
		}
	}
	return false
}

// Orient makes triangle winding consistent within every connected component
// and returns the number of triangles that were flipped.
//
// Winding is propagated breadth-first across shared edges starting from the
// lowest-numbered triangle of each component. A closed component whose signed
// volume is negative is then flipped as a whole so its normals point outward.
// Open components keep the winding of their first triangle.
func (m *Mesh) Orient() int {
	edges := m.edgeMap()
	visited := make([]bool, len(m.Triangles))
	flipped := 0

	for seed := range m.Triangles {
		if visited[seed] {
			continue
		}

		component := []int{seed}
		visited[seed] = true
		for q := 0; q < len(component); q++ {
			t := m.Triangles[component[q]]
			for k := 0; k < 3; k++ {
				a, b := t[k], t[(k+1)%3]
				for _, n := range edges[makeEdgeKey(a, b)] {
					if visited[n] {
						continue
					}
					// A consistent neighbour traverses the shared edge as b then a
					if hasDirectedEdge(m.Triangles[n], a, b) {
						m.flip(n)
						flipped++
					}
					visited[n] = true
					component = append(component, n)
				}
			}
		}

		if !m.isClosed(component, edges) {
			continue
		}
		vol := 0.0
		for _, i := range component {
			tri := m.Triangle(i)
			vol += r3.Dot(tri[0], r3.Cross(tri[1], tri[2]))
		}
		if vol < 0 {
			for _, i := range component {
				m.flip(i)
			}
			flipped += len(component)
		}
	}

	return flipped
}

func (m *Mesh) flip(i int) {
	m.Triangles[i][1], m.Triangles[i][2] = m.Triangles[i][2], m.Triangles[i][1]
}

// isClosed reports whether every edge of the component is shared by exactly
// two triangles
func (m *Mesh) isClosed(component []int, edges map[edgeKey][]int) bool {
	for _, i := range component {
		t := m.Triangles[i]
		for k := 0; k < 3; k++ {
			if len(edges[makeEdgeKey(t[k], t[(k+1)%3])]) != 2 {
				return false
			}
		}
	}
	return true
}

// ComputeNormals orients the mesh and fills unit cell normals and
// area-weighted unit point normals. Points not used by any triangle get a
// zero normal.
func (m *Mesh) ComputeNormals() {
	m.Orient()

	m.CellNormals = make([]r3.Vec, len(m.Triangles))
	m.PointNormals = make([]r3.Vec, len(m.Points))

	for i, t := range m.Triangles {
		// Normal() has length twice the triangle area, which is the weight
		// used for the point normals
		n := m.Triangle(i).Normal()
		if u, err := geometry.SafeUnit(n, 0); err == nil {
			m.CellNormals[i] = u
		}
		for _, idx := range t {
			m.PointNormals[idx] = r3.Add(m.PointNormals[idx], n)
		}
	}

	for i, n := range m.PointNormals {
		if u, err := geometry.SafeUnit(n, 0); err == nil {
			m.PointNormals[i] = u
		} else {
			m.PointNormals[i] = r3.Vec{}
		}
	}
}
