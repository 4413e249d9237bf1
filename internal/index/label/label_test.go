package label

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddContainsQuery(t *testing.T) {
	ix := New()
	ix.Add(1, 10)
	ix.Add(1, 20)
	ix.Add(2, 20)

	require.True(t, ix.Contains(1, 10))
	require.False(t, ix.Contains(1, 30))
	require.ElementsMatch(t, []uint64{10, 20}, ix.Query(1).ToArray())
	require.True(t, ix.Query(99).IsEmpty())
}

func TestRemoveDropsNode(t *testing.T) {
	ix := New()
	ix.Add(1, 10)
	ix.Add(1, 20)
	ix.Remove(1, 10)

	require.False(t, ix.Contains(1, 10))
	require.ElementsMatch(t, []uint64{20}, ix.Query(1).ToArray())

	// Removing from an unknown label id is a no-op, not a panic.
	ix.Remove(7, 1)
}

func TestAndIntersectsAcrossLabels(t *testing.T) {
	ix := New()
	// 10: Person+Employee, 20: Person only.
	ix.Add(1, 10)
	ix.Add(2, 10)
	ix.Add(1, 20)

	require.ElementsMatch(t, []uint64{10}, ix.And(1, 2).ToArray())
	require.True(t, ix.And().IsEmpty())
}

func TestOrUnionsAcrossLabels(t *testing.T) {
	ix := New()
	ix.Add(1, 10)
	ix.Add(2, 20)

	require.ElementsMatch(t, []uint64{10, 20}, ix.Or(1, 2).ToArray())
	require.True(t, ix.Or().IsEmpty())
}

func TestAndNotExcludesLabels(t *testing.T) {
	ix := New()
	ix.Add(1, 10)
	ix.Add(1, 20)
	ix.Add(2, 20)

	got := ix.AndNot([]uint32{1}, []uint32{2})
	require.ElementsMatch(t, []uint64{10}, got.ToArray())

	// No include labels at all yields the empty set regardless of exclude.
	require.True(t, ix.AndNot(nil, []uint32{1}).IsEmpty())
}

func TestStatsReportsCardinality(t *testing.T) {
	ix := New()
	ix.Add(1, 10)
	ix.Add(1, 20)
	ix.Add(2, 30)

	st := ix.Stats()
	require.Equal(t, uint64(2), st.Cardinality[1])
	require.Equal(t, uint64(1), st.Cardinality[2])
	require.Len(t, st.Cardinality, 2)
}

func TestQueryReturnsPrivateCopy(t *testing.T) {
	ix := New()
	ix.Add(1, 10)

	bm := ix.Query(1)
	bm.Add(99)

	require.False(t, ix.Contains(1, 99))
}
