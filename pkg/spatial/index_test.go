package spatial

import (
	"math/rand"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// line builds n elements spaced one unit apart along X.
func line(n int) []Element {
	elems := make([]Element, n)
	for i := range elems {
		elems[i] = Element{Point: v3.Vec{X: float64(i)}, Index: uint32(i)}
	}
	return elems
}

func TestInsertRemove(t *testing.T) {
	idx := New(line(5)...)
	require.Equal(t, 5, idx.Size())

	assert.True(t, idx.Remove(Element{Point: v3.Vec{X: 2}, Index: 2}))
	assert.Equal(t, 4, idx.Size())

	// Already gone.
	assert.False(t, idx.Remove(Element{Point: v3.Vec{X: 2}, Index: 2}))
	// Same payload, different point is not a match.
	assert.False(t, idx.Remove(Element{Point: v3.Vec{X: 7}, Index: 3}))
	// Same point, different payload is not a match either.
	assert.False(t, idx.Remove(Element{Point: v3.Vec{X: 3}, Index: 4}))
	assert.Equal(t, 4, idx.Size())
}

func TestRemoveDuplicate(t *testing.T) {
	e := Element{Point: v3.Vec{X: 1, Y: 1, Z: 1}, Index: 9}
	idx := New(e, e)
	require.Equal(t, 2, idx.Size())
	assert.True(t, idx.Remove(e))
	assert.True(t, idx.Remove(e))
	assert.False(t, idx.Remove(e))
	assert.Equal(t, 0, idx.Size())
}

func TestNearestAscending(t *testing.T) {
	idx := New(line(10)...)
	got := idx.Nearest(v3.Vec{X: 4.2}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, uint32(4), got[0].Index)
	assert.Equal(t, uint32(5), got[1].Index)
	assert.Equal(t, uint32(3), got[2].Index)
}

func TestNearestClampsK(t *testing.T) {
	idx := New(line(3)...)
	assert.Len(t, idx.Nearest(v3.Vec{}, 50), 3)
	assert.Empty(t, idx.Nearest(v3.Vec{}, 0))
	assert.Empty(t, New().Nearest(v3.Vec{}, 4))
}

func TestQuery(t *testing.T) {
	idx := New(line(10)...)
	got := idx.Query(func(e Element) bool { return e.Index%2 == 0 })
	require.Len(t, got, 5)
	for _, e := range got {
		assert.Zero(t, e.Index%2)
	}
	assert.Empty(t, New().Query(func(Element) bool { return true }))
}

func TestEachInsertionOrder(t *testing.T) {
	elems := line(6)
	idx := New(elems[3], elems[1], elems[5], elems[0])
	idx.Remove(elems[1])

	var got []uint32
	idx.Each(func(e Element) bool {
		got = append(got, e.Index)
		return true
	})
	assert.Equal(t, []uint32{3, 5, 0}, got)

	first, ok := idx.First()
	require.True(t, ok)
	assert.Equal(t, uint32(3), first.Index)
}

func TestCompactKeepsLiveElements(t *testing.T) {
	elems := line(200)
	idx := New(elems...)
	for _, e := range elems[:150] {
		require.True(t, idx.Remove(e))
	}
	count := 0
	idx.Each(func(e Element) bool {
		assert.GreaterOrEqual(t, e.Index, uint32(150))
		count++
		return true
	})
	assert.Equal(t, 50, count)
	assert.Equal(t, 50, idx.Size())
}

func TestFirstEmpty(t *testing.T) {
	_, ok := New().First()
	assert.False(t, ok)
}

func TestFirstAdvancesPastRemoved(t *testing.T) {
	elems := line(100)
	idx := New(elems...)
	for i, e := range elems {
		first, ok := idx.First()
		require.True(t, ok)
		require.Equal(t, uint32(i), first.Index)
		require.True(t, idx.Remove(e))
	}
	_, ok := idx.First()
	assert.False(t, ok)

	// Reinserted elements come back at the end of the order.
	idx.Insert(elems[7])
	idx.Insert(elems[2])
	first, ok := idx.First()
	require.True(t, ok)
	assert.Equal(t, uint32(7), first.Index)
}

func TestRemoveRetiresOldestCopy(t *testing.T) {
	elems := line(3)
	idx := New(elems[0], elems[1], elems[0], elems[2])
	require.True(t, idx.Remove(elems[0]))

	var got []uint32
	idx.Each(func(e Element) bool {
		got = append(got, e.Index)
		return true
	})
	assert.Equal(t, []uint32{1, 0, 2}, got)

	first, ok := idx.First()
	require.True(t, ok)
	assert.Equal(t, uint32(1), first.Index)
}

func TestWithin(t *testing.T) {
	idx := New(line(10)...)

	got := idx.Within(v3.Vec{X: 4}, 2)
	var ids []uint32
	for _, e := range got {
		ids = append(ids, e.Index)
	}
	// Elements exactly r away are included.
	assert.ElementsMatch(t, []uint32{2, 3, 4, 5, 6}, ids)

	assert.Len(t, idx.Within(v3.Vec{X: 4, Y: 0.5}, 0.5), 1)
	assert.Empty(t, idx.Within(v3.Vec{X: 4, Y: 3}, 1))
	assert.Empty(t, idx.Within(v3.Vec{}, -1))
	assert.Empty(t, New().Within(v3.Vec{}, 5))
}

func TestWithinMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	elems := make([]Element, 500)
	for i := range elems {
		elems[i] = Element{
			Point: v3.Vec{X: r.Float64() * 20, Y: r.Float64() * 20, Z: r.Float64() * 20},
			Index: uint32(i),
		}
	}
	idx := New(elems...)
	for q := 0; q < 20; q++ {
		p := v3.Vec{X: r.Float64() * 20, Y: r.Float64() * 20, Z: r.Float64() * 20}
		var want []uint32
		for _, e := range elems {
			if e.Point.Sub(p).Length() <= 3 {
				want = append(want, e.Index)
			}
		}
		var got []uint32
		for _, e := range idx.Within(p, 3) {
			got = append(got, e.Index)
		}
		assert.ElementsMatch(t, want, got, "query %v", p)
	}
}
