package meshquery

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// rayEps rejects rays parallel to a triangle plane.
const rayEps = 1e-12

// RayHit is the result of casting a ray against the mesh.
type RayHit struct {
	Face   int     // NoFace when the ray misses
	T      float64 // ray parameter, +Inf on a miss
	Source v3.Vec
	Dir    v3.Vec

	normal v3.Vec
}

// IsHit reports whether the ray hit a face.
func (h RayHit) IsHit() bool {
	return h.Face != NoFace
}

// Position returns the hit point.
func (h RayHit) Position() v3.Vec {
	return h.Source.Add(h.Dir.MulScalar(h.T))
}

// Distance returns the distance from the ray source to the hit point.
func (h RayHit) Distance() float64 {
	return h.T * h.Dir.Length()
}

// Normal returns the unit normal of the hit face, or the zero vector on a
// miss.
func (h RayHit) Normal() v3.Vec {
	return h.normal
}

func miss(src, dir v3.Vec) RayHit {
	return RayHit{Face: NoFace, T: math.Inf(1), Source: src, Dir: dir}
}

// RayHit returns the nearest intersection of the ray src + t*dir, t >= 0.
func (t *Tree) RayHit(src, dir v3.Vec) RayHit {
	hits := t.RayHits(src, dir)
	if len(hits) == 0 {
		return miss(src, dir)
	}
	return hits[0]
}

// RayHits returns every intersection of the ray src + t*dir, t >= 0,
// ordered by t.
func (t *Tree) RayHits(src, dir v3.Vec) []RayHit {
	if len(t.boxes) == 0 || dir.Length() == 0 {
		return nil
	}

	var hits []RayHit
	for _, fb := range t.candidates(src, dir) {
		tri := t.mesh.Triangle(fb.id)
		tt, ok := intersect(src, dir, tri[0], tri[1], tri[2])
		if !ok {
			continue
		}
		hits = append(hits, RayHit{
			Face:   fb.id,
			T:      tt,
			Source: src,
			Dir:    dir,
			normal: t.mesh.FaceNormal(fb.id).Normalize(),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].T == hits[j].T {
			return hits[i].Face < hits[j].Face
		}
		return hits[i].T < hits[j].T
	})
	return hits
}

// candidates returns the faces whose boxes intersect the bounding box of
// the ray clipped to the mesh bounds.
func (t *Tree) candidates(src, dir v3.Vec) []*faceBox {
	t0, t1, ok := clipToBox(src, dir, t.bb.Min.SubScalar(boxPad), t.bb.Max.AddScalar(boxPad))
	if !ok {
		return nil
	}
	a := src.Add(dir.MulScalar(t0))
	b := src.Add(dir.MulScalar(t1))
	lo := a.Min(b).SubScalar(boxPad)
	size := a.Max(b).AddScalar(boxPad).Sub(lo)
	rect, err := rtreego.NewRect(rtreego.Point{lo.X, lo.Y, lo.Z}, []float64{size.X, size.Y, size.Z})
	if err != nil {
		return t.boxes
	}
	found := t.rt.SearchIntersect(rect)
	out := make([]*faceBox, len(found))
	for i, s := range found {
		out[i] = s.(*faceBox)
	}
	return out
}

// clipToBox intersects the ray with an axis aligned box using the slab
// method and returns the parameter interval inside the box.
func clipToBox(src, dir, lo, hi v3.Vec) (float64, float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	s := [3]float64{src.X, src.Y, src.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	l := [3]float64{lo.X, lo.Y, lo.Z}
	h := [3]float64{hi.X, hi.Y, hi.Z}
	for i := 0; i < 3; i++ {
		if d[i] == 0 {
			if s[i] < l[i] || s[i] > h[i] {
				return 0, 0, false
			}
			continue
		}
		ta := (l[i] - s[i]) / d[i]
		tb := (h[i] - s[i]) / d[i]
		if ta > tb {
			ta, tb = tb, ta
		}
		tmin = math.Max(tmin, ta)
		tmax = math.Min(tmax, tb)
		if tmin > tmax {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

// intersect is the Möller–Trumbore ray/triangle test.
func intersect(src, dir, a, b, c v3.Vec) (float64, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	pv := dir.Cross(e2)
	det := e1.Dot(pv)
	if math.Abs(det) < rayEps {
		return 0, false
	}
	inv := 1 / det
	tv := src.Sub(a)
	u := tv.Dot(pv) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	qv := tv.Cross(e1)
	v := dir.Dot(qv) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	tt := e2.Dot(qv) * inv
	if tt < 0 {
		return 0, false
	}
	return tt, true
}
