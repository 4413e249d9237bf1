package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateNodeRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AllocateNode(0b101, 7)
	require.NoError(t, err)

	n, err := s.ReadNode(id)
	require.NoError(t, err)
	require.Equal(t, id, n.NodeID)
	require.True(t, n.HasLabel(0))
	require.False(t, n.HasLabel(1))
	require.True(t, n.HasLabel(2))
	require.Equal(t, uint64(7), n.CreatedEpoch)
	require.Equal(t, None, n.FirstRelID)
	require.True(t, n.Live())
}

func TestAllocateNodeAcrossPageBoundary(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	perPage := s.nodeIO.perPage
	var last uint64
	for i := 0; i < perPage+3; i++ {
		id, err := s.AllocateNode(0, uint64(i))
		require.NoError(t, err)
		last = id
	}
	n, err := s.ReadNode(last)
	require.NoError(t, err)
	require.Equal(t, last, n.NodeID)

	// A slot from the first page must still be intact after the second
	// page was seeded, proving ensurePage never re-zeroes a populated page.
	first, err := s.ReadNode(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.NodeID)
	require.Equal(t, uint64(0), first.CreatedEpoch)
	require.Equal(t, None, first.FirstRelID)
}

func TestCreateRelationshipSplicesBothEndpoints(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	b, err := s.AllocateNode(0, 1)
	require.NoError(t, err)

	rel, err := s.CreateRelationship(a, b, 5, 2)
	require.NoError(t, err)

	na, err := s.ReadNode(a)
	require.NoError(t, err)
	require.Equal(t, rel, na.FirstRelID)

	nb, err := s.ReadNode(b)
	require.NoError(t, err)
	require.Equal(t, rel, nb.FirstRelID)

	r, err := s.ReadRelationship(rel)
	require.NoError(t, err)
	require.Equal(t, a, r.SrcNodeID)
	require.Equal(t, b, r.DstNodeID)
	require.Equal(t, None, r.NextFor(a))
	require.Equal(t, None, r.PrevFor(a))
	require.Equal(t, None, r.NextFor(b))
	require.Equal(t, None, r.PrevFor(b))
}

func TestCreateRelationshipSelfLoop(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AllocateNode(0, 1)
	require.NoError(t, err)

	rel, err := s.CreateRelationship(a, a, 1, 1)
	require.NoError(t, err)

	r, err := s.ReadRelationship(rel)
	require.NoError(t, err)
	require.True(t, r.SelfLoop())
	require.Equal(t, a, r.OtherEndpoint(a))

	n, err := s.ReadNode(a)
	require.NoError(t, err)
	require.Equal(t, rel, n.FirstRelID)
}

func TestAdjacencyWalksInsertionOrderHeadFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	others := make([]uint64, 3)
	rels := make([]uint64, 3)
	for i := range others {
		others[i], err = s.AllocateNode(0, 1)
		require.NoError(t, err)
		rels[i], err = s.CreateRelationship(a, others[i], uint32(i), 1)
		require.NoError(t, err)
	}

	var seen []uint64
	err = s.Adjacency(a, func(relID uint64) error {
		seen = append(seen, relID)
		return nil
	})
	require.NoError(t, err)
	// New relationships are spliced at the head, so the walk sees the most
	// recently created relationship first.
	require.Equal(t, []uint64{rels[2], rels[1], rels[0]}, seen)
}

func TestDeleteRelationshipUnsplicesMiddleOfList(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	b, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	c, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	d, err := s.AllocateNode(0, 1)
	require.NoError(t, err)

	r1, err := s.CreateRelationship(a, b, 0, 1)
	require.NoError(t, err)
	r2, err := s.CreateRelationship(a, c, 0, 1)
	require.NoError(t, err)
	r3, err := s.CreateRelationship(a, d, 0, 1)
	require.NoError(t, err)

	// list head-to-tail is r3, r2, r1; delete the middle one.
	require.NoError(t, s.DeleteRelationship(r2, 5))

	var seen []uint64
	err = s.Adjacency(a, func(relID uint64) error {
		seen = append(seen, relID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{r3, r1}, seen)

	deleted, err := s.ReadRelationship(r2)
	require.NoError(t, err)
	require.False(t, deleted.Live())
	require.Equal(t, uint64(5), deleted.DeletedEpoch)
}

func TestDeleteRelationshipUnsplicesHeadAndTail(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	b, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	c, err := s.AllocateNode(0, 1)
	require.NoError(t, err)

	r1, err := s.CreateRelationship(a, b, 0, 1)
	require.NoError(t, err)
	r2, err := s.CreateRelationship(a, c, 0, 1)
	require.NoError(t, err)

	// head is r2; delete it, then delete the new head (r1).
	require.NoError(t, s.DeleteRelationship(r2, 2))
	n, err := s.ReadNode(a)
	require.NoError(t, err)
	require.Equal(t, r1, n.FirstRelID)

	require.NoError(t, s.DeleteRelationship(r1, 3))
	n, err = s.ReadNode(a)
	require.NoError(t, err)
	require.Equal(t, None, n.FirstRelID)
}

func TestMarkNodeDeletedTombstones(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AllocateNode(0, 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkNodeDeleted(id, 9))

	n, err := s.ReadNode(id)
	require.NoError(t, err)
	require.False(t, n.Live())
	require.Equal(t, uint64(9), n.DeletedEpoch)
}
