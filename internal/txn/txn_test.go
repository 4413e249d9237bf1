package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/wal"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	w, err := wal.Open(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return New(w)
}

func TestWriterEpochStrictlyGreaterThanCommitted(t *testing.T) {
	m := newTestManager(t)

	tx1, err := m.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx1))

	tx2, err := m.BeginWrite()
	require.NoError(t, err)
	require.Greater(t, tx2.Epoch(), tx1.Epoch())
	require.NoError(t, m.Commit(tx2))
}

func TestReaderSnapshotIsolatedFromLaterWriter(t *testing.T) {
	m := newTestManager(t)

	tx1, err := m.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx1))

	reader := m.BeginRead()
	defer m.EndRead(reader)

	tx2, err := m.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx2))

	require.Less(t, reader.Epoch(), tx2.Epoch())
}

func TestAbortRunsReversalInReverseOrder(t *testing.T) {
	m := newTestManager(t)
	tx, err := m.BeginWrite()
	require.NoError(t, err)

	var order []int
	tx.AddReversal(ReversalStep{Description: "first", Undo: func() error { order = append(order, 1); return nil }})
	tx.AddReversal(ReversalStep{Description: "second", Undo: func() error { order = append(order, 2); return nil }})

	require.NoError(t, m.Abort(tx))
	require.Equal(t, []int{2, 1}, order)
	require.Equal(t, StateAborted, tx.State())
}

func TestSecondWriterBlocksUntilFirstFinishes(t *testing.T) {
	m := newTestManager(t)
	tx1, err := m.BeginWrite()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tx2, err := m.BeginWrite()
		require.NoError(t, err)
		require.NoError(t, m.Commit(tx2))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second writer proceeded before first committed")
	default:
	}
	require.NoError(t, m.Commit(tx1))
	<-done
}

func TestVisibilityRule(t *testing.T) {
	require.True(t, Visible(10, 5, 0))
	require.True(t, Visible(10, 10, 0))
	require.False(t, Visible(10, 11, 0))
	require.True(t, Visible(10, 5, 11))
	require.False(t, Visible(10, 5, 10))
	require.False(t, Visible(10, 5, 5))
}

func TestOldestActiveEpochTracksReaders(t *testing.T) {
	m := newTestManager(t)
	tx1, err := m.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx1))

	reader := m.BeginRead()
	require.Equal(t, reader.Epoch(), m.OldestActiveEpoch())

	tx2, err := m.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx2))

	require.Equal(t, reader.Epoch(), m.OldestActiveEpoch())
	m.EndRead(reader)
	require.Equal(t, m.CommittedEpoch(), m.OldestActiveEpoch())
}
