package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/propstore"
)

func TestPerKeyIndexSeekFindsExactValue(t *testing.T) {
	p := NewPerKeyIndex()
	p.Add(propstore.Int(30), 1)
	p.Add(propstore.Int(25), 2)
	p.Add(propstore.Int(30), 3)

	bm := p.Seek(propstore.Int(30))
	require.ElementsMatch(t, []uint64{1, 3}, bm.ToArray())
	require.True(t, p.Seek(propstore.Int(99)).IsEmpty())
}

func TestPerKeyIndexRemoveDropsEmptyEntry(t *testing.T) {
	p := NewPerKeyIndex()
	p.Add(propstore.Int(30), 1)
	p.Remove(propstore.Int(30), 1)

	require.True(t, p.Seek(propstore.Int(30)).IsEmpty())
	require.Equal(t, 0, p.Stats().DistinctValues)
}

func TestPerKeyIndexRangeInclusiveBounds(t *testing.T) {
	p := NewPerKeyIndex()
	for _, age := range []int64{20, 25, 30, 35, 40} {
		p.Add(propstore.Int(age), uint64(age))
	}

	lo, hi := propstore.Int(25), propstore.Int(35)
	bm := p.Range(&lo, &hi, true, true)
	require.ElementsMatch(t, []uint64{25, 30, 35}, bm.ToArray())

	bm = p.Range(&lo, &hi, false, false)
	require.ElementsMatch(t, []uint64{30}, bm.ToArray())
}

func TestPerKeyIndexRangeUnboundedSide(t *testing.T) {
	p := NewPerKeyIndex()
	for _, age := range []int64{20, 25, 30} {
		p.Add(propstore.Int(age), uint64(age))
	}

	hi := propstore.Int(25)
	bm := p.Range(nil, &hi, true, true)
	require.ElementsMatch(t, []uint64{20, 25}, bm.ToArray())
}

func TestPerKeyIndexStringOrdering(t *testing.T) {
	p := NewPerKeyIndex()
	p.Add(propstore.Str("bob"), 1)
	p.Add(propstore.Str("alice"), 2)

	lo := propstore.Str("aaa")
	hi := propstore.Str("bbb")
	bm := p.Range(&lo, &hi, true, true)
	require.ElementsMatch(t, []uint64{2}, bm.ToArray())
}

func TestIndexEnsureIndexedIsIdempotent(t *testing.T) {
	ix := New()
	require.False(t, ix.IsIndexed(1, 2))

	p1 := ix.EnsureIndexed(1, 2)
	p2 := ix.EnsureIndexed(1, 2)
	require.Same(t, p1, p2)
	require.True(t, ix.IsIndexed(1, 2))

	_, ok := ix.Get(1, 3)
	require.False(t, ok)
}
