// Package spatial provides a mutable 3D point index with integer payloads.
// It is backed by an R-tree and supports insertion, exact removal,
// k-nearest and predicate queries.
package spatial

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// R-tree fan-out, same shape as an R*-tree with 16 max / 4 min entries.
const (
	minChildren = 4
	maxChildren = 16
)

// pointTol is the half extent of the box stored for each point.
const pointTol = 1e-9

// Element is a point paired with the caller's payload index.
// Two elements are the same element only if both fields are equal.
type Element struct {
	Point v3.Vec
	Index uint32
}

// Bounds implements rtreego.Spatial.
func (e Element) Bounds() rtreego.Rect {
	return rtreego.Point{e.Point.X, e.Point.Y, e.Point.Z}.ToRect(pointTol)
}

// Distance returns the Euclidean distance between the two element points.
func (e Element) Distance(o Element) float64 {
	return e.Point.Sub(o.Point).Length()
}

// slot is one stored copy of an element in insertion order.
type slot struct {
	e    Element
	dead bool
}

// Index is a spatial index over Elements. It is not safe for concurrent use.
type Index struct {
	tree *rtreego.Rtree

	// order keeps insertion order so iteration is deterministic. live holds,
	// per element, its stored copies oldest first; Remove retires the oldest.
	order []*slot
	live  map[Element][]*slot
	head  int // order[:head] holds only dead slots
	dead  int

	min, max v3.Vec
}

// New returns an empty index, optionally pre-filled with elements.
func New(elems ...Element) *Index {
	idx := &Index{
		tree: rtreego.NewTree(3, minChildren, maxChildren),
		live: make(map[Element][]*slot, len(elems)),
		min:  v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		max:  v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, e := range elems {
		idx.Insert(e)
	}
	return idx
}

// Insert adds e to the index.
func (idx *Index) Insert(e Element) {
	idx.tree.Insert(e)
	s := &slot{e: e}
	idx.order = append(idx.order, s)
	idx.live[e] = append(idx.live[e], s)
	idx.min = idx.min.Min(e.Point)
	idx.max = idx.max.Max(e.Point)
}

// Remove deletes one copy of e. It reports whether an exact match existed.
func (idx *Index) Remove(e Element) bool {
	copies := idx.live[e]
	if len(copies) == 0 {
		return false
	}
	if !idx.tree.Delete(e) {
		return false
	}
	copies[0].dead = true
	if len(copies) == 1 {
		delete(idx.live, e)
	} else {
		idx.live[e] = copies[1:]
	}
	idx.dead++
	idx.compact()
	return true
}

// compact drops dead slots from the iteration order once they dominate it.
func (idx *Index) compact() {
	if len(idx.order) < 64 || idx.dead*2 < len(idx.order) {
		return
	}
	kept := idx.order[:0]
	for _, s := range idx.order {
		if !s.dead {
			kept = append(kept, s)
		}
	}
	clear(idx.order[len(kept):])
	idx.order = kept
	idx.head = 0
	idx.dead = 0
}

// Size returns the number of stored elements.
func (idx *Index) Size() int {
	return idx.tree.Size()
}

// Each calls fn for every stored element in insertion order until fn
// returns false. fn must not modify the index.
func (idx *Index) Each(fn func(Element) bool) {
	for _, s := range idx.order[idx.head:] {
		if s.dead {
			continue
		}
		if !fn(s.e) {
			return
		}
	}
}

// First returns the oldest element still stored.
func (idx *Index) First() (Element, bool) {
	for idx.head < len(idx.order) && idx.order[idx.head].dead {
		idx.head++
	}
	if idx.head == len(idx.order) {
		return Element{}, false
	}
	return idx.order[idx.head].e, true
}

// Nearest returns up to k elements closest to p, ordered by ascending
// distance.
func (idx *Index) Nearest(p v3.Vec, k int) []Element {
	if k <= 0 || idx.Size() == 0 {
		return nil
	}
	if k > idx.Size() {
		k = idx.Size()
	}
	found := idx.tree.NearestNeighbors(k, rtreego.Point{p.X, p.Y, p.Z})
	ret := make([]Element, 0, len(found))
	for _, s := range found {
		if s == nil {
			continue
		}
		ret = append(ret, s.(Element))
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Point.Sub(p).Length() < ret[j].Point.Sub(p).Length()
	})
	return ret
}

// Query returns every stored element for which fn returns true, in no
// particular order.
func (idx *Index) Query(fn func(Element) bool) []Element {
	if idx.Size() == 0 {
		return nil
	}
	bb, err := rtreego.NewRect(
		rtreego.Point{idx.min.X - 1, idx.min.Y - 1, idx.min.Z - 1},
		[]float64{idx.max.X - idx.min.X + 2, idx.max.Y - idx.min.Y + 2, idx.max.Z - idx.min.Z + 2},
	)
	if err != nil {
		return nil
	}
	found := idx.tree.SearchIntersect(bb, func(_ []rtreego.Spatial, obj rtreego.Spatial) (refuse, abort bool) {
		return !fn(obj.(Element)), false
	})
	ret := make([]Element, 0, len(found))
	for _, s := range found {
		ret = append(ret, s.(Element))
	}
	return ret
}

// Within returns every stored element at distance at most r from p, in no
// particular order.
func (idx *Index) Within(p v3.Vec, r float64) []Element {
	if idx.Size() == 0 || r < 0 || math.IsNaN(r) {
		return nil
	}
	// Pad the search box so elements exactly r away are not lost to the
	// point boxes' own extent.
	half := r + 2*pointTol
	bb, err := rtreego.NewRect(
		rtreego.Point{p.X - half, p.Y - half, p.Z - half},
		[]float64{2 * half, 2 * half, 2 * half},
	)
	if err != nil {
		return nil
	}
	found := idx.tree.SearchIntersect(bb, func(_ []rtreego.Spatial, obj rtreego.Spatial) (refuse, abort bool) {
		return obj.(Element).Point.Sub(p).Length() > r, false
	})
	ret := make([]Element, 0, len(found))
	for _, s := range found {
		ret = append(ret, s.(Element))
	}
	return ret
}
