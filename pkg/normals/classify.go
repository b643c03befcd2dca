package normals

import (
	"fmt"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultEdgeEpsilon is the on-edge tolerance used when none is given.
const DefaultEdgeEpsilon = 0.05

// Kind says where on its face a closest point landed.
type Kind int

const (
	FaceInterior Kind = iota // away from every vertex and edge
	OnVertex                 // within eps of vertex A
	OnEdge                   // within eps of the line through A and B
)

func (k Kind) String() string {
	switch k {
	case FaceInterior:
		return "face-interior"
	case OnVertex:
		return "on-vertex"
	case OnEdge:
		return "on-edge"
	default:
		return "unknown"
	}
}

// Degeneracy classifies a closest point. A and B are mesh vertex ids; A is
// set for OnVertex and OnEdge, B only for OnEdge. Unused ids are -1.
type Degeneracy struct {
	Kind Kind
	A, B int
}

func (d Degeneracy) String() string {
	switch d.Kind {
	case OnVertex:
		return fmt.Sprintf("on-vertex(%d)", d.A)
	case OnEdge:
		return fmt.Sprintf("on-edge(%d,%d)", d.A, d.B)
	default:
		return d.Kind.String()
	}
}

// Classify decides whether c, a point on triangle tri with vertex ids ids,
// sits on one of its vertices, on one of its edges, or inside it. Vertices
// are tested before edges, each in face order.
//
// The edge test measures the distance to the infinite line through the two
// vertices, so points colinear with an edge but outside its span still
// count as on-edge.
func Classify(c v3.Vec, tri sdf.Triangle3, ids [3]int, eps float64) Degeneracy {
	for i := 0; i < 3; i++ {
		if c.Sub(tri[i]).Length() < eps {
			return Degeneracy{Kind: OnVertex, A: ids[i], B: -1}
		}
	}
	for _, e := range [3][2]int{{0, 1}, {1, 2}, {0, 2}} {
		if PointOnEdge(c, tri[e[0]], tri[e[1]], eps) {
			return Degeneracy{Kind: OnEdge, A: ids[e[0]], B: ids[e[1]]}
		}
	}
	return Degeneracy{Kind: FaceInterior, A: -1, B: -1}
}

// PointOnEdge reports whether p lies within eps of the line through e1 and e2.
func PointOnEdge(p, e1, e2 v3.Vec, eps float64) bool {
	return LineDistance(p, e1, e2) < eps
}

// LineDistance returns the distance from p to the infinite line through a
// and b. A zero-length line degenerates to the distance to a.
func LineDistance(p, a, b v3.Vec) float64 {
	d := b.Sub(a)
	l := d.Length()
	if l == 0 {
		return p.Sub(a).Length()
	}
	return p.Sub(a).Cross(d).Length() / l
}

// FaceNormal returns cross(t1-t0, t2-t0), not normalized.
func FaceNormal(tri sdf.Triangle3) v3.Vec {
	return tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
}
