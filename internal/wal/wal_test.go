package wal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndCommitAssignsIncreasingLSNs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	l1, err := w.Append(KindTxBegin, 1, nil)
	require.NoError(t, err)
	l2, err := w.Append(KindNodeCreate, 1, []byte("node-1"))
	require.NoError(t, err)
	l3, err := w.Commit(1, nil)
	require.NoError(t, err)

	require.True(t, l1 < l2)
	require.True(t, l2 < l3)
}

func TestReplayAppliesOnlyCommittedTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	require.NoError(t, err)

	_, err = w.Append(KindTxBegin, 1, nil)
	require.NoError(t, err)
	_, err = w.Append(KindNodeCreate, 1, []byte("committed-node"))
	require.NoError(t, err)
	_, err = w.Commit(1, nil)
	require.NoError(t, err)

	_, err = w.Append(KindTxBegin, 2, nil)
	require.NoError(t, err)
	_, err = w.Append(KindNodeCreate, 2, []byte("uncommitted-node"))
	require.NoError(t, err)
	// tx 2 never commits.

	require.NoError(t, w.Close())

	var applied []Entry
	err = Replay(path, func(e Entry) error {
		applied = append(applied, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, "committed-node", string(applied[0].Payload))
}

func TestReplayIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	require.NoError(t, err)
	_, err = w.Append(KindNodeCreate, 1, []byte("n"))
	require.NoError(t, err)
	_, err = w.Commit(1, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	apply := func(count *int) func(Entry) error {
		return func(Entry) error {
			*count++
			return nil
		}
	}
	var n1, n2 int
	require.NoError(t, Replay(path, apply(&n1)))
	require.NoError(t, Replay(path, apply(&n2)))
	require.Equal(t, n1, n2)
}

func TestReplayStopsAtLastCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	require.NoError(t, err)

	_, err = w.Append(KindNodeCreate, 1, []byte("before-checkpoint"))
	require.NoError(t, err)
	_, err = w.Commit(1, nil)
	require.NoError(t, err)
	_, err = w.Append(KindCheckpoint, 0, nil)
	require.NoError(t, err)
	_, err = w.Append(KindNodeCreate, 2, []byte("after-checkpoint"))
	require.NoError(t, err)
	_, err = w.Commit(2, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var applied []Entry
	require.NoError(t, Replay(path, func(e Entry) error {
		applied = append(applied, e)
		return nil
	}))
	require.Len(t, applied, 1)
	require.Equal(t, "after-checkpoint", string(applied[0].Payload))
}

func TestReopenResumesLSNSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := Open(path)
	require.NoError(t, err)
	lsn, err := w.Commit(1, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := Open(path)
	require.NoError(t, err)
	defer w2.Close()
	next, err := w2.Append(KindNodeCreate, 2, nil)
	require.NoError(t, err)
	require.True(t, next > lsn)
}
