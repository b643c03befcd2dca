// Package meshquery answers proximity questions about an indexed triangle
// mesh: closest surface point, ray intersection and signed distance.
//
// Face bounding boxes are kept in an R-tree. A Tree is immutable after New
// and safe for concurrent queries.
package meshquery

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"

	"github.com/chazu/slasupport/pkg/kernel"
	"github.com/chazu/slasupport/pkg/logging"
)

// NoFace marks a query that could not be associated with any face.
const NoFace = -1

// boxPad keeps flat, axis aligned faces from producing zero-volume boxes.
const boxPad = 1e-9

// initialK is the first batch size of the incremental nearest-face search.
const initialK = 8

// faceBox is the R-tree entry for one face.
type faceBox struct {
	id       int
	min, max v3.Vec
	rect     rtreego.Rect
}

func (f *faceBox) Bounds() rtreego.Rect {
	return f.rect
}

// sqDist returns the squared distance from p to the box.
func (f *faceBox) sqDist(p v3.Vec) float64 {
	d := f.min.Sub(p).Max(p.Sub(f.max)).Max(v3.Vec{})
	return d.Dot(d)
}

type options struct {
	logger *logging.Logger
}

// Option configures a Tree.
type Option func(*options)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Tree is a query structure over a mesh.
type Tree struct {
	mesh  *kernel.Mesh
	rt    *rtreego.Rtree
	boxes []*faceBox
	bb    sdf.Box3
}

// New builds a query tree over m. m must not be modified afterwards.
// A nil or empty mesh yields a tree that finds nothing.
func New(m *kernel.Mesh, opts ...Option) *Tree {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNoop(o.logger).WithComponent("meshquery")

	if m == nil {
		m = &kernel.Mesh{}
	}
	t := &Tree{mesh: m, bb: m.BoundingBox()}
	if m.IsEmpty() {
		return t
	}

	t.boxes = make([]*faceBox, 0, len(m.F))
	objs := make([]rtreego.Spatial, 0, len(m.F))
	for i := range m.F {
		tri := m.Triangle(i)
		if !finite(tri) {
			logger.Warn("skipping face with non-finite vertices", "face", i)
			continue
		}
		lo := tri[0].Min(tri[1]).Min(tri[2]).SubScalar(boxPad)
		hi := tri[0].Max(tri[1]).Max(tri[2]).AddScalar(boxPad)
		size := hi.Sub(lo)
		rect, err := rtreego.NewRect(rtreego.Point{lo.X, lo.Y, lo.Z}, []float64{size.X, size.Y, size.Z})
		if err != nil {
			logger.Warn("skipping face with invalid bounds", "face", i, "error", err)
			continue
		}
		fb := &faceBox{id: i, min: lo, max: hi, rect: rect}
		t.boxes = append(t.boxes, fb)
		objs = append(objs, fb)
	}
	t.rt = rtreego.NewTree(3, 4, 16, objs...)

	logger.Debug("mesh query tree built",
		"vertices", m.VertexCount(),
		"faces", len(t.boxes),
	)
	return t
}

func finite(tri sdf.Triangle3) bool {
	for _, v := range tri {
		for _, c := range [3]float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return false
			}
		}
	}
	return true
}

// Mesh returns the mesh the tree was built over.
func (t *Tree) Mesh() *kernel.Mesh {
	return t.mesh
}

// GroundLevel returns the lowest Z coordinate of the mesh.
func (t *Tree) GroundLevel() float64 {
	return t.bb.Min.Z
}

// Hit is the result of a closest point query.
type Hit struct {
	Point  v3.Vec  // closest point on the surface
	Face   int     // owning face, NoFace if the mesh is empty
	SqDist float64 // squared distance from the query point
}

// SquaredDistance returns the closest point on the mesh surface to p.
// Ties between faces resolve to the lowest face index.
func (t *Tree) SquaredDistance(p v3.Vec) Hit {
	if len(t.boxes) == 0 {
		return Hit{Face: NoFace}
	}

	n := len(t.boxes)
	k := min(initialK, n)
	qp := rtreego.Point{p.X, p.Y, p.Z}
	for {
		best := Hit{Face: NoFace, SqDist: math.Inf(1)}
		bound := 0.0
		for _, s := range t.rt.NearestNeighbors(k, qp) {
			if s == nil {
				continue
			}
			fb := s.(*faceBox)
			bound = math.Max(bound, fb.sqDist(p))

			tri := t.mesh.Triangle(fb.id)
			c := ClosestOnTriangle(p, tri[0], tri[1], tri[2])
			d := c.Sub(p)
			sq := d.Dot(d)
			if sq < best.SqDist || (sq == best.SqDist && fb.id < best.Face) {
				best = Hit{Point: c, Face: fb.id, SqDist: sq}
			}
		}
		// Faces not returned are at least bound away.
		if k >= n || best.SqDist <= bound {
			return best
		}
		k = min(2*k, n)
	}
}

// ClosestOnTriangle returns the point of triangle (a, b, c) closest to p.
func ClosestOnTriangle(p, a, b, c v3.Vec) v3.Vec {
	ab := b.Sub(a)
	ac := c.Sub(a)
	if ab.Cross(ac).Length() == 0 {
		return closestOnDegenerate(p, a, b, c)
	}

	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.MulScalar(d1 / (d1 - d3)))
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.MulScalar(d2 / (d2 - d6)))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).MulScalar(w))
	}

	denom := 1 / (va + vb + vc)
	return a.Add(ab.MulScalar(vb * denom)).Add(ac.MulScalar(vc * denom))
}

// closestOnDegenerate handles zero-area triangles by testing their edges.
func closestOnDegenerate(p, a, b, c v3.Vec) v3.Vec {
	best := closestOnSegment(p, a, b)
	for _, q := range []v3.Vec{closestOnSegment(p, b, c), closestOnSegment(p, a, c)} {
		if q.Sub(p).Length() < best.Sub(p).Length() {
			best = q
		}
	}
	return best
}

func closestOnSegment(p, a, b v3.Vec) v3.Vec {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return a
	}
	s := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/l2))
	return a.Add(ab.MulScalar(s))
}
