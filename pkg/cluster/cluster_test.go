package cluster

import (
	"math/rand"
	"sort"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/slasupport/pkg/spatial"
)

// indicesOf returns 0..n-1.
func indicesOf(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// assertPartition checks that clusters cover want exactly once.
func assertPartition(t *testing.T, cs Clusters, want []uint32) {
	t.Helper()
	seen := make(map[uint32]int)
	for _, c := range cs {
		for _, i := range c {
			seen[i]++
		}
	}
	require.Len(t, seen, len(want), "distinct indices")
	for _, i := range want {
		assert.Equal(t, 1, seen[i], "index %d", i)
	}
}

// canonical sorts clusters for order-independent comparison.
func canonical(cs Clusters) [][]uint32 {
	out := make([][]uint32, len(cs))
	for i, c := range cs {
		cp := append([]uint32(nil), c...)
		sort.Slice(cp, func(a, b int) bool { return cp[a] < cp[b] })
		out[i] = cp
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

func randomCloud(r *rand.Rand, n int, extent float64) []v3.Vec {
	pts := make([]v3.Vec, n)
	for i := range pts {
		pts[i] = v3.Vec{X: r.Float64() * extent, Y: r.Float64() * extent, Z: r.Float64() * extent}
	}
	return pts
}

func TestEmptyInput(t *testing.T) {
	assert.Empty(t, Points(nil, 1, 0))
	assert.Empty(t, ByDistance(nil, func(uint32) v3.Vec { return v3.Vec{} }, 1, 0))
	assert.Empty(t, ByPredicate(nil, func(uint32) v3.Vec { return v3.Vec{} },
		func(p, e spatial.Element) bool { return true }, 0))
	assert.Empty(t, Group(spatial.New(), 3, DistanceQuery(1, 3)))
}

func TestTwoPairsAndSingleton(t *testing.T) {
	pts := []v3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 0.01, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
		{X: 10.01, Y: 0, Z: 0},
	}
	got := canonical(Points(pts, 1.0, 0))
	assert.Equal(t, [][]uint32{{0, 1}, {2, 3}}, got)

	pts = append(pts, v3.Vec{X: 100, Y: 100, Z: 100})
	got = canonical(Points(pts, 1.0, 0))
	assert.Equal(t, [][]uint32{{0, 1}, {2, 3}, {4}}, got)
}

func TestCoincidentPoints(t *testing.T) {
	pts := []v3.Vec{{X: 1, Y: 2, Z: 3}, {X: 1, Y: 2, Z: 3}, {X: 1, Y: 2, Z: 3}}
	got := Points(pts, 0.5, 0)
	require.Len(t, got, 1)
	assert.Equal(t, Cluster{0, 1, 2}, got[0])
}

func TestChainConnectivity(t *testing.T) {
	// Points one unit apart form one cluster even though the ends are far.
	pts := make([]v3.Vec, 20)
	for i := range pts {
		pts[i] = v3.Vec{X: float64(i)}
	}
	got := Points(pts, 1.0, 0)
	require.Len(t, got, 1)
	assert.Len(t, got[0], 20)

	got = Points(pts, 0.9, 0)
	assert.Len(t, got, 20)
}

func TestSizeCap(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	pts := randomCloud(r, 300, 10)
	for _, maxPoints := range []int{1, 2, 3, 5, 8} {
		got := Points(pts, 2.0, maxPoints)
		assertPartition(t, got, indicesOf(len(pts)))
		for _, c := range got {
			assert.LessOrEqual(t, len(c), maxPoints)
			assert.NotEmpty(t, c)
		}
	}
}

func TestPartitionAndConnectivity(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	pts := randomCloud(r, 250, 20)
	const dist = 1.5
	got := Points(pts, dist, 0)
	assertPartition(t, got, indicesOf(len(pts)))

	for _, c := range got {
		// Every member must be reachable from the first by hops <= dist.
		reached := map[uint32]bool{c[0]: true}
		queue := []uint32{c[0]}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, o := range c {
				if !reached[o] && pts[cur].Sub(pts[o]).Length() <= dist {
					reached[o] = true
					queue = append(queue, o)
				}
			}
		}
		assert.Len(t, reached, len(c))
	}

	// Uncapped clusters are full components: no pair across clusters is
	// within dist.
	owner := make(map[uint32]int)
	for ci, c := range got {
		for _, i := range c {
			owner[i] = ci
		}
	}
	for i := range pts {
		for j := range pts {
			if pts[i].Sub(pts[j]).Length() <= dist {
				assert.Equal(t, owner[uint32(i)], owner[uint32(j)])
			}
		}
	}
}

func TestDeterministicUncapped(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	pts := randomCloud(r, 120, 15)
	want := canonical(Points(pts, 1.2, 0))

	// Same points inserted in reverse order.
	indices := indicesOf(len(pts))
	for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
		indices[i], indices[j] = indices[j], indices[i]
	}
	got := canonical(ByDistance(indices, func(i uint32) v3.Vec { return pts[i] }, 1.2, 0))
	assert.Equal(t, want, got)
}

func TestByPredicate(t *testing.T) {
	// Neighbors share the same integer X cell.
	pts := []v3.Vec{{X: 0.1}, {X: 0.9}, {X: 1.2}, {X: 1.8}, {X: 5.5}}
	pred := func(p, e spatial.Element) bool {
		return int(p.Point.X) == int(e.Point.X)
	}
	got := canonical(ByPredicate(indicesOf(len(pts)), func(i uint32) v3.Vec { return pts[i] }, pred, 0))
	assert.Equal(t, [][]uint32{{0, 1}, {2, 3}, {4}}, got)
}

func TestByPredicateNeverTrue(t *testing.T) {
	pts := []v3.Vec{{X: 0}, {X: 1}, {X: 2}}
	got := ByPredicate(indicesOf(3), func(i uint32) v3.Vec { return pts[i] },
		func(p, e spatial.Element) bool { return false }, 0)
	assertPartition(t, got, indicesOf(3))
	assert.Len(t, got, 3)
}

func TestByPredicateCapped(t *testing.T) {
	pts := make([]v3.Vec, 10)
	got := ByPredicate(indicesOf(10), func(i uint32) v3.Vec { return pts[i] },
		func(p, e spatial.Element) bool { return true }, 4)
	assertPartition(t, got, indicesOf(10))
	require.Len(t, got, 3)
	// Fill to capacity in index order.
	assert.Equal(t, Cluster{0, 1, 2, 3}, got[0])
	assert.Equal(t, Cluster{4, 5, 6, 7}, got[1])
	assert.Equal(t, Cluster{8, 9}, got[2])
}

func TestGroupEmptiesIndex(t *testing.T) {
	idx := spatial.New()
	for i := 0; i < 30; i++ {
		idx.Insert(spatial.Element{Point: v3.Vec{X: float64(i % 7), Y: float64(i / 7)}, Index: uint32(i)})
	}
	got := Group(idx, 0, DistanceQuery(1.0, 0))
	assert.Equal(t, 0, idx.Size())
	assertPartition(t, got, indicesOf(30))
}

func TestGroupForeignQueryResult(t *testing.T) {
	idx := spatial.New(spatial.Element{Point: v3.Vec{}, Index: 1})
	// A query returning something that was never in the index.
	bogus := func(*spatial.Index, spatial.Element) []spatial.Element {
		return []spatial.Element{{Point: v3.Vec{X: 9}, Index: 99}}
	}
	got := Group(idx, 0, bogus)
	assert.Equal(t, Clusters{{1}}, got)
	assert.Equal(t, 0, idx.Size())
}

func TestDifferenceAndMerge(t *testing.T) {
	el := func(ids ...uint32) []spatial.Element {
		out := make([]spatial.Element, len(ids))
		for i, id := range ids {
			out[i] = spatial.Element{Index: id}
		}
		return out
	}
	d := difference(el(1, 2, 4, 6, 9), el(2, 3, 6))
	assert.Equal(t, el(1, 4, 9), d)
	assert.Equal(t, el(1, 2, 3, 5), merge(el(1, 3), el(2, 5)))
	assert.Equal(t, el(1, 3), merge(el(1, 3), nil))
}

func TestDistanceQueryUncappedMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	pts := randomCloud(r, 400, 10)
	idx := spatial.New()
	for i, p := range pts {
		idx.Insert(spatial.Element{Point: p, Index: uint32(i)})
	}

	query := DistanceQuery(1.0, 0)
	for q := 0; q < 25; q++ {
		seed := spatial.Element{Point: pts[q], Index: uint32(q)}
		var want []uint32
		for i, p := range pts {
			if seed.Point.Sub(p).Length() <= 1.0 {
				want = append(want, uint32(i))
			}
		}
		var got []uint32
		for _, e := range query(idx, seed) {
			got = append(got, e.Index)
		}
		assert.ElementsMatch(t, want, got, "seed %d", q)
	}
}

func TestLargeUncappedCloud(t *testing.T) {
	if testing.Short() {
		t.Skip("large cloud")
	}
	r := rand.New(rand.NewSource(5))
	pts := randomCloud(r, 4000, 100)
	got := Points(pts, 2.0, 0)
	assertPartition(t, got, indicesOf(len(pts)))
	assert.Equal(t, len(pts), got.Total())
}

func TestTotal(t *testing.T) {
	cs := Clusters{{0, 1, 2}, {3}, {4, 5}}
	assert.Equal(t, 6, cs.Total())
	assert.Len(t, cs, 3)
	assert.Zero(t, Clusters(nil).Total())
}
