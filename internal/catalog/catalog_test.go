package catalog

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.kv"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestInternLabelIdempotent(t *testing.T) {
	c := openTestCatalog(t)

	id1, err := c.InternLabel("Person")
	require.NoError(t, err)

	id2, err := c.InternLabel("Person")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestInternLabelDenseAssignment(t *testing.T) {
	c := openTestCatalog(t)

	a, err := c.InternLabel("A")
	require.NoError(t, err)
	b, err := c.InternLabel("B")
	require.NoError(t, err)

	require.Equal(t, uint32(0), a)
	require.Equal(t, uint32(1), b)
}

func TestLabelNameUnknownID(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.LabelName(999)
	require.Error(t, err)
}

func TestConcurrentInterningReturnsSameID(t *testing.T) {
	c := openTestCatalog(t)

	const n = 16
	ids := make([]uint32, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := c.InternLabel("Concurrent")
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestSchemaEpochBumpsOnNewIntern(t *testing.T) {
	c := openTestCatalog(t)

	before := c.SchemaEpoch()
	_, err := c.InternLabel("NewLabel")
	require.NoError(t, err)
	after := c.SchemaEpoch()

	require.Greater(t, after, before)

	// Re-interning the same name must not bump the epoch again.
	_, err = c.InternLabel("NewLabel")
	require.NoError(t, err)
	require.Equal(t, after, c.SchemaEpoch())
}

func TestBumpLabelCounterAndSnapshot(t *testing.T) {
	c := openTestCatalog(t)

	label, err := c.InternLabel("Person")
	require.NoError(t, err)

	require.NoError(t, c.BumpLabelCounter(label, 1))
	require.NoError(t, c.BumpLabelCounter(label, 1))
	require.NoError(t, c.BumpLabelCounter(label, -1))

	st, err := c.SnapshotStats(label)
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Count)
}

func TestListLabels(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.InternLabel("Person")
	require.NoError(t, err)
	_, err = c.InternLabel("Employee")
	require.NoError(t, err)

	names, err := c.ListLabels()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Person", "Employee"}, names)
}
