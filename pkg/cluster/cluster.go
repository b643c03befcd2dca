// Package cluster groups support points into bounded-size spatial clusters.
//
// Clusters are grown depth-first from a seed: every neighbor of a cluster
// member that is not yet in the cluster joins it, until the neighborhood is
// exhausted or the size cap is reached. Finished clusters are removed from
// the spatial index so later seeds never see them again.
package cluster

import (
	"context"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/slasupport/pkg/logging"
	"github.com/chazu/slasupport/pkg/spatial"
)

// Cluster is a set of payload indices, sorted ascending.
type Cluster []uint32

// Clusters partitions the input indices.
type Clusters []Cluster

// Total returns the number of indices over all clusters. The number of
// clusters is len(cs).
func (cs Clusters) Total() int {
	n := 0
	for _, c := range cs {
		n += len(c)
	}
	return n
}

// QueryFunc returns the neighbors of p among the elements still in idx.
type QueryFunc func(idx *spatial.Index, p spatial.Element) []spatial.Element

// Predicate decides whether e is a neighbor of p. It need not be symmetric.
type Predicate func(p, e spatial.Element) bool

// PointFunc maps a payload index to its position.
type PointFunc func(idx uint32) v3.Vec

type options struct {
	logger *logging.Logger
}

// Option configures clustering.
type Option func(*options)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNoop(o.logger).WithComponent("cluster")
	return o
}

// frame is one level of the depth-first expansion: a frontier and the
// position of the next frontier point to expand.
type frame struct {
	pts  []spatial.Element
	next int
}

// Group consumes idx and returns its elements partitioned into clusters of
// at most maxPoints elements (0 means unbounded). idx is empty afterwards.
func Group(idx *spatial.Index, maxPoints int, query QueryFunc, opts ...Option) Clusters {
	o := buildOptions(opts)
	if maxPoints < 0 {
		maxPoints = 0
	}

	var result Clusters
	for idx.Size() > 0 {
		seed, ok := idx.First()
		if !ok {
			break
		}

		members := grow(idx, seed, maxPoints, query)
		if len(members) == 0 {
			// The query did not even return the seed itself.
			members = []spatial.Element{seed}
		}

		c := make(Cluster, 0, len(members))
		for _, m := range members {
			if !idx.Remove(m) {
				o.logger.Warn("cluster member missing from index",
					"index", m.Index,
				)
				continue
			}
			c = append(c, m.Index)
		}
		if len(c) == 0 {
			// Nothing the query returned was in the index; retire the seed
			// so the loop still makes progress.
			idx.Remove(seed)
			c = Cluster{seed.Index}
		}
		result = append(result, c)
	}

	o.logger.DebugContext(context.Background(), "clustering completed",
		"clusters", len(result),
		"points", result.Total(),
		"max_points", maxPoints,
	)
	return result
}

// grow expands a cluster from seed and returns its members sorted by index.
func grow(idx *spatial.Index, seed spatial.Element, maxPoints int, query QueryFunc) []spatial.Element {
	var members []spatial.Element
	stack := []frame{{pts: []spatial.Element{seed}}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.pts) {
			stack = stack[:len(stack)-1]
			continue
		}
		p := top.pts[top.next]
		top.next++

		candidates := query(idx, p)
		sortByIndex(candidates)
		fresh := difference(candidates, members)

		admit := len(fresh)
		if maxPoints > 0 && len(fresh)+len(members) > maxPoints {
			admit = maxPoints - len(members)
		}
		members = merge(members, fresh[:admit])

		if len(fresh) > 0 && (maxPoints == 0 || len(members) < maxPoints) {
			stack = append(stack, frame{pts: fresh})
		}
	}
	return members
}

func sortByIndex(elems []spatial.Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		return elems[i].Index < elems[j].Index
	})
}

// difference returns the elements of a whose index is not in b. Both
// slices must be sorted by index.
func difference(a, b []spatial.Element) []spatial.Element {
	var out []spatial.Element
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j >= len(b) || a[i].Index < b[j].Index:
			out = append(out, a[i])
			i++
		case a[i].Index > b[j].Index:
			j++
		default:
			i++
		}
	}
	return out
}

// merge joins two index-sorted slices into a new sorted slice.
func merge(a, b []spatial.Element) []spatial.Element {
	if len(b) == 0 {
		return a
	}
	out := make([]spatial.Element, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Index <= b[j].Index {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
