package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/record"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	l := newLRU(2)
	l.put("a", 1, 0)
	l.put("b", 2, 0)
	_, _ = l.get("a") // touch a, making b the LRU entry
	l.put("c", 3, 0)

	_, ok := l.get("b")
	require.False(t, ok)
	v, ok := l.get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestLRUExpiresEntriesPastTTL(t *testing.T) {
	l := newLRU(10)
	l.put("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := l.get("a")
	require.False(t, ok)
}

func TestObjectCacheRoundTripAndInvalidate(t *testing.T) {
	oc := newObjectCache(10)
	key := ObjectKey{Kind: KindNode, ID: 1, CreatedEpoch: 5}
	node := &record.Node{NodeID: 1, CreatedEpoch: 5}

	oc.PutNode(key, node, 0)
	got, ok := oc.GetNode(key)
	require.True(t, ok)
	require.Same(t, node, got)

	oc.Invalidate(key)
	_, ok = oc.GetNode(key)
	require.False(t, ok)
}

func TestObjectCacheDistinguishesCreatedEpoch(t *testing.T) {
	oc := newObjectCache(10)
	oc.PutNode(ObjectKey{Kind: KindNode, ID: 1, CreatedEpoch: 1}, &record.Node{NodeID: 1, CreatedEpoch: 1}, 0)
	_, ok := oc.GetNode(ObjectKey{Kind: KindNode, ID: 1, CreatedEpoch: 2})
	require.False(t, ok)
}

func TestPlanCacheCollapsesConcurrentCompiles(t *testing.T) {
	pc := newPlanCache(10)
	calls := 0
	compile := func() (any, error) {
		calls++
		return "plan", nil
	}

	done := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := pc.GetOrCompile("MATCH (n) RETURN n", "[]", compile)
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	require.Equal(t, 1, calls)
}

func TestResultCacheInvalidatesOnMutationCounterMismatch(t *testing.T) {
	rc := newResultCache(10)
	rc.Put("MATCH (n) RETURN n", "{}", 1, 7, []int{1, 2, 3}, 0)

	v, ok := rc.Get("MATCH (n) RETURN n", "{}", 1, 7)
	require.True(t, ok)
	require.Equal(t, []int{1, 2, 3}, v)

	_, ok = rc.Get("MATCH (n) RETURN n", "{}", 1, 8)
	require.False(t, ok)
}

func TestResultCacheSeparatesSchemaEpochs(t *testing.T) {
	rc := newResultCache(10)
	rc.Put("MATCH (n) RETURN n", "{}", 1, 0, "epoch1", 0)
	_, ok := rc.Get("MATCH (n) RETURN n", "{}", 2, 0)
	require.False(t, ok)
}

func TestMultiLayerCacheSchemaChangeClearsPlanAndResult(t *testing.T) {
	c := New(nil, Config{ObjectCapacity: 10, IndexPageCapacity: 10, PlanCapacity: 10, ResultCapacity: 10})
	_, err := c.Plans.GetOrCompile("Q", "[]", func() (any, error) { return "plan", nil })
	require.NoError(t, err)
	c.Results.Put("Q", "{}", 0, 0, "result", 0)

	c.OnSchemaChange()

	require.Equal(t, 0, c.Plans.Stats().Entries)
	require.Equal(t, 0, c.Results.Stats().Entries)
}

func TestMultiLayerCacheMutationCounterIncrements(t *testing.T) {
	c := New(nil, DefaultConfig())
	require.Equal(t, uint64(0), c.MutationCounter())
	c.OnWriterCommit()
	require.Equal(t, uint64(1), c.MutationCounter())
}
