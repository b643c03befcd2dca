package cluster

import (
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/slasupport/pkg/spatial"
)

// DistanceQuery returns a QueryFunc yielding the nearest elements within
// dist of the query point. At most maxPoints candidates are considered per
// query; 0 considers every element in the index.
func DistanceQuery(dist float64, maxPoints int) QueryFunc {
	return func(idx *spatial.Index, p spatial.Element) []spatial.Element {
		if maxPoints <= 0 {
			return idx.Within(p.Point, dist)
		}
		near := idx.Nearest(p.Point, maxPoints)
		kept := near[:0]
		for _, e := range near {
			if p.Distance(e) <= dist {
				kept = append(kept, e)
			}
		}
		return kept
	}
}

// PredicateQuery returns a QueryFunc yielding every element e still in the
// index for which pred(p, e) holds.
func PredicateQuery(pred Predicate) QueryFunc {
	return func(idx *spatial.Index, p spatial.Element) []spatial.Element {
		return idx.Query(func(e spatial.Element) bool {
			return pred(p, e)
		})
	}
}

func buildIndex(indices []uint32, pointFn PointFunc) *spatial.Index {
	idx := spatial.New()
	for _, i := range indices {
		idx.Insert(spatial.Element{Point: pointFn(i), Index: i})
	}
	return idx
}

// ByDistance clusters the points behind indices so that every member of a
// cluster is linked to another member by a hop of at most dist.
func ByDistance(indices []uint32, pointFn PointFunc, dist float64, maxPoints int, opts ...Option) Clusters {
	if len(indices) == 0 {
		return nil
	}
	return Group(buildIndex(indices, pointFn), maxPoints, DistanceQuery(dist, maxPoints), opts...)
}

// ByPredicate clusters the points behind indices using pred as the
// neighbor relation.
func ByPredicate(indices []uint32, pointFn PointFunc, pred Predicate, maxPoints int, opts ...Option) Clusters {
	if len(indices) == 0 {
		return nil
	}
	return Group(buildIndex(indices, pointFn), maxPoints, PredicateQuery(pred), opts...)
}

// Points clusters pts by distance; payload indices are slice positions.
func Points(pts []v3.Vec, dist float64, maxPoints int, opts ...Option) Clusters {
	if len(pts) == 0 {
		return nil
	}
	idx := spatial.New()
	for i, p := range pts {
		idx.Insert(spatial.Element{Point: p, Index: uint32(i)})
	}
	return Group(idx, maxPoints, DistanceQuery(dist, maxPoints), opts...)
}
