package meshquery

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// SignedHit is a closest point result carrying an inside/outside sign.
type SignedHit struct {
	Hit
	// Distance is negative inside the mesh.
	Distance float64
}

// WindingNumber returns the generalized winding number of the mesh around
// p: about 1 inside a closed, outward oriented mesh and 0 outside.
func (t *Tree) WindingNumber(p v3.Vec) float64 {
	if t.mesh.IsEmpty() {
		return 0
	}
	var sum float64
	for i := range t.mesh.F {
		tri := t.mesh.Triangle(i)
		sum += solidAngle(tri[0].Sub(p), tri[1].Sub(p), tri[2].Sub(p))
	}
	return sum / (4 * math.Pi)
}

// solidAngle returns the signed solid angle subtended by a triangle whose
// corners are given relative to the viewpoint (Van Oosterom and Strackee).
func solidAngle(a, b, c v3.Vec) float64 {
	la, lb, lc := a.Length(), b.Length(), c.Length()
	num := a.Dot(b.Cross(c))
	den := la*lb*lc + a.Dot(b)*lc + b.Dot(c)*la + c.Dot(a)*lb
	return 2 * math.Atan2(num, den)
}

// Inside reports whether p is enclosed by the mesh.
func (t *Tree) Inside(p v3.Vec) bool {
	return t.WindingNumber(p) >= 0.5
}

// SignedDistance returns the closest point to p and its distance, negated
// when p is inside the mesh.
func (t *Tree) SignedDistance(p v3.Vec) SignedHit {
	h := t.SquaredDistance(p)
	if h.Face == NoFace {
		return SignedHit{Hit: h}
	}
	d := math.Sqrt(h.SqDist)
	if t.Inside(p) {
		d = -d
	}
	return SignedHit{Hit: h, Distance: d}
}
