package kernel

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// DefaultWeldEpsilon is the distance under which two vertices are merged.
const DefaultWeldEpsilon = 1e-4

// ErrFaceIndex is returned when a face references a vertex that does not exist.
var ErrFaceIndex = errors.New("face references missing vertex")

// Mesh is an indexed triangle mesh. F holds counter-clockwise vertex index
// triples into V.
type Mesh struct {
	V []v3.Vec
	F [][3]int
}

// NewMesh builds a mesh from vertex and face arrays, merging vertices that
// lie within eps of an earlier vertex and remapping faces accordingly.
// eps <= 0 merges only exact duplicates.
func NewMesh(v []v3.Vec, f [][3]int, eps float64) (*Mesh, error) {
	for i, face := range f {
		for _, vi := range face {
			if vi < 0 || vi >= len(v) {
				return nil, fmt.Errorf("kernel: face %d vertex %d: %w", i, vi, ErrFaceIndex)
			}
		}
	}

	remap, welded := weld(v, eps)
	faces := make([][3]int, len(f))
	for i, face := range f {
		faces[i] = [3]int{remap[face[0]], remap[face[1]], remap[face[2]]}
	}
	return &Mesh{V: welded, F: faces}, nil
}

// FromSoup builds a mesh from a triangle soup where every three consecutive
// vertices form one triangle. Trailing vertices that do not complete a
// triangle are ignored.
func FromSoup(soup []v3.Vec, eps float64) (*Mesh, error) {
	n := len(soup) / 3
	faces := make([][3]int, n)
	for i := range faces {
		faces[i] = [3]int{3 * i, 3*i + 1, 3*i + 2}
	}
	return NewMesh(soup[:3*n], faces, eps)
}

// weldPoint is a representative vertex stored in the weld tree.
type weldPoint struct {
	p  v3.Vec
	id int
}

func (w *weldPoint) Bounds() rtreego.Rect {
	return rtreego.Point{w.p.X, w.p.Y, w.p.Z}.ToRect(1e-12)
}

// weld returns, for every input vertex, the index of its representative in
// the returned vertex slice. Representatives keep first-seen order.
func weld(v []v3.Vec, eps float64) ([]int, []v3.Vec) {
	remap := make([]int, len(v))
	var out []v3.Vec

	if eps <= 0 {
		seen := make(map[v3.Vec]int, len(v))
		for i, p := range v {
			id, ok := seen[p]
			if !ok {
				id = len(out)
				out = append(out, p)
				seen[p] = id
			}
			remap[i] = id
		}
		return remap, out
	}

	tree := rtreego.NewTree(3, 4, 16)
	for i, p := range v {
		bb, err := rtreego.NewRect(
			rtreego.Point{p.X - eps, p.Y - eps, p.Z - eps},
			[]float64{2 * eps, 2 * eps, 2 * eps},
		)
		id := -1
		if err == nil {
			best := math.Inf(1)
			for _, s := range tree.SearchIntersect(bb) {
				w := s.(*weldPoint)
				d := w.p.Sub(p).Length()
				if d <= eps && (d < best || (d == best && w.id < id)) {
					best, id = d, w.id
				}
			}
		}
		if id < 0 {
			id = len(out)
			out = append(out, p)
			tree.Insert(&weldPoint{p: p, id: id})
		}
		remap[i] = id
	}
	return remap, out
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.V)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.F)
}

// IsEmpty returns true if the mesh has no faces or no vertices.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.V) == 0 || len(m.F) == 0
}

// Triangle returns the vertex positions of face i.
func (m *Mesh) Triangle(i int) sdf.Triangle3 {
	f := m.F[i]
	return sdf.Triangle3{m.V[f[0]], m.V[f[1]], m.V[f[2]]}
}

// FaceNormal returns cross(v1-v0, v2-v0) for face i. Its length is twice
// the triangle area.
func (m *Mesh) FaceNormal(i int) v3.Vec {
	t := m.Triangle(i)
	return t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
}

// BoundingBox returns the axis-aligned bounds of all vertices.
func (m *Mesh) BoundingBox() sdf.Box3 {
	if len(m.V) == 0 {
		return sdf.Box3{}
	}
	bb := sdf.Box3{Min: m.V[0], Max: m.V[0]}
	for _, p := range m.V[1:] {
		bb.Min = bb.Min.Min(p)
		bb.Max = bb.Max.Max(p)
	}
	return bb
}

// GroundLevel returns the lowest Z coordinate of the mesh.
func (m *Mesh) GroundLevel() float64 {
	return m.BoundingBox().Min.Z
}

// DropDegenerate removes faces that reference the same vertex twice and
// returns how many were removed.
func (m *Mesh) DropDegenerate() int {
	kept := m.F[:0]
	for _, f := range m.F {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		kept = append(kept, f)
	}
	dropped := len(m.F) - len(kept)
	m.F = kept
	return dropped
}
