package relindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddIsQueryableByTypeBeforeWarming(t *testing.T) {
	ix := New()
	ix.Add(100, 1, 10, 20)

	require.ElementsMatch(t, []uint64{100}, ix.Query(1).ToArray())
	require.False(t, ix.IsWarm(10))

	ids, ok := ix.Expand(10, nil, Outgoing)
	require.False(t, ok)
	require.Nil(t, ids)
}

func TestWarmThenExpandFiltersByTypeAndDirection(t *testing.T) {
	ix := New()
	ix.Warm(10, nil, nil)
	ix.Add(100, 1, 10, 20) // 10 -[:1]-> 20
	ix.Add(101, 2, 10, 30) // 10 -[:2]-> 30
	ix.Warm(20, nil, nil)
	ix.Warm(30, nil, nil)
	ix.Add(102, 1, 10, 20) // second :1 edge after 20/30 already warm

	out, ok := ix.Expand(10, nil, Outgoing)
	require.True(t, ok)
	require.ElementsMatch(t, []uint64{100, 101, 102}, out)

	typ1 := uint32(1)
	out, ok = ix.Expand(10, &typ1, Outgoing)
	require.True(t, ok)
	require.ElementsMatch(t, []uint64{100, 102}, out)

	in, ok := ix.Expand(20, nil, Incoming)
	require.True(t, ok)
	require.ElementsMatch(t, []uint64{102}, in)
}

func TestSelfLoopRecordedOnlyOnOutgoingSide(t *testing.T) {
	ix := New()
	ix.Warm(10, nil, nil)
	ix.Add(100, 1, 10, 10)

	out, ok := ix.Expand(10, nil, Outgoing)
	require.True(t, ok)
	require.ElementsMatch(t, []uint64{100}, out)

	in, ok := ix.Expand(10, nil, Incoming)
	require.True(t, ok)
	require.Empty(t, in)
}

func TestRemoveUnindexesFromTypeBitmapAndAdjacency(t *testing.T) {
	ix := New()
	ix.Warm(10, nil, nil)
	ix.Warm(20, nil, nil)
	ix.Add(100, 1, 10, 20)
	ix.Remove(100)

	require.True(t, ix.Query(1).IsEmpty())
	out, ok := ix.Expand(10, nil, Outgoing)
	require.True(t, ok)
	require.Empty(t, out)
	in, ok := ix.Expand(20, nil, Incoming)
	require.True(t, ok)
	require.Empty(t, in)

	// Removing an id that was never added is a no-op.
	ix.Remove(999)
}

func TestEvictForgetsWarmStateButNotTypeBitmap(t *testing.T) {
	ix := New()
	ix.Warm(10, nil, nil)
	ix.Add(100, 1, 10, 20)
	require.True(t, ix.IsWarm(10))

	ix.Evict(10)
	require.False(t, ix.IsWarm(10))
	require.ElementsMatch(t, []uint64{100}, ix.Query(1).ToArray())
}

func TestWarmSeedsFromSuppliedLists(t *testing.T) {
	ix := New()
	ix.Warm(10, []uint64{100, 101}, []uint64{200})

	out, ok := ix.Expand(10, nil, Outgoing)
	require.True(t, ok)
	require.Equal(t, []uint64{100, 101}, out)

	in, ok := ix.Expand(10, nil, Incoming)
	require.True(t, ok)
	require.Equal(t, []uint64{200}, in)
}

func TestStatsTracksPerTypeCardinalityAndWarmCount(t *testing.T) {
	ix := New()
	ix.Warm(10, nil, nil)
	ix.Add(100, 1, 10, 20)
	ix.Add(101, 1, 10, 30)
	ix.Add(102, 2, 10, 30)

	st := ix.Stats()
	require.Equal(t, uint64(2), st.CardinalityByType[1])
	require.Equal(t, uint64(1), st.CardinalityByType[2])
	require.Equal(t, 1, st.WarmNodes)
}

func TestQueryReturnsPrivateCopy(t *testing.T) {
	ix := New()
	ix.Add(100, 1, 10, 20)

	bm := ix.Query(1)
	bm.Add(999)

	require.ElementsMatch(t, []uint64{100}, ix.Query(1).ToArray())
}
