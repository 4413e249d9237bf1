package wal

import (
	"bytes"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// DefaultBatchCount and DefaultBatchInterval are the WAL writer's
// batching defaults (spec.md §4.5: "batches entries by count (default
// 100) and by elapsed time (default 10 ms)").
const (
	DefaultBatchCount    = 100
	DefaultBatchInterval = 10 * time.Millisecond
	channelCapacity      = 4096
)

type request struct {
	entry Entry
	ack   chan error // non-nil only for TX_COMMIT, per spec.md §4.5
}

// WAL is the append-only, CRC32-checked, background-written log of
// physical record changes (spec.md §4.5). A single WAL instance belongs
// to one database directory and is driven by exactly one writer
// transaction at a time (spec.md §5), so LSN assignment needs no
// contention beyond a simple atomic counter.
type WAL struct {
	file *os.File

	lsn      atomic.Uint64
	ch       chan request
	doneCh   chan struct{}
	poisoned atomic.Bool

	batchCount    int
	batchInterval time.Duration

	closeOnce sync.Once
}

// Open opens (creating if necessary) the WAL segment file at path and
// starts its background writer goroutine.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "open WAL segment %s", path)
	}
	w := &WAL{
		file:          f,
		ch:            make(chan request, channelCapacity),
		doneCh:        make(chan struct{}),
		batchCount:    DefaultBatchCount,
		batchInterval: DefaultBatchInterval,
	}
	// Resume LSN numbering from whatever the segment already holds so a
	// reopened database never reuses an LSN.
	if last, ok := lastLSN(f); ok {
		w.lsn.Store(last)
	}
	go w.run()
	return w, nil
}

func lastLSN(f *os.File) (uint64, bool) {
	entries, _ := scanEntries(f, true)
	if len(entries) == 0 {
		return 0, false
	}
	return entries[len(entries)-1].LSN, true
}

// poisonedErr is returned once a flush has failed to fsync; every
// subsequent producer call fails the same way until the database is
// reopened (spec.md §4.5 "Failure semantics").
func (w *WAL) poisonedErr() error {
	return nexuserr.New(nexuserr.KindDurability, "WAL writer is poisoned: a prior fsync failed")
}

// Append enqueues a fire-and-forget entry (anything other than
// TX_COMMIT) and returns its assigned LSN. The producer does not wait for
// it to reach disk.
func (w *WAL) Append(kind Kind, txID uint64, payload []byte) (uint64, error) {
	if w.poisoned.Load() {
		return 0, w.poisonedErr()
	}
	lsn := w.lsn.Add(1)
	w.ch <- request{entry: Entry{LSN: lsn, TxID: txID, Kind: kind, Payload: payload}}
	return lsn, nil
}

// Commit enqueues a TX_COMMIT entry and blocks until its LSN has been
// fsynced, per spec.md §4.5 and §4.6 ("commit blocks on the WAL writer
// acknowledging durability"). TX_COMMIT is always the last entry written
// for txID (spec.md §4.6, §5 "Ordering guarantees").
func (w *WAL) Commit(txID uint64, payload []byte) (uint64, error) {
	if w.poisoned.Load() {
		return 0, w.poisonedErr()
	}
	lsn := w.lsn.Add(1)
	ack := make(chan error, 1)
	w.ch <- request{entry: Entry{LSN: lsn, TxID: txID, Kind: KindTxCommit, Payload: payload}, ack: ack}
	if err := <-ack; err != nil {
		return lsn, err
	}
	return lsn, nil
}

// Close drains the channel, fsyncs, and closes the segment cleanly
// (spec.md §4.5 "Shutdown drains the channel, fsyncs, and closes
// cleanly").
func (w *WAL) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		close(w.ch)
		<-w.doneCh
		closeErr = w.file.Close()
	})
	return closeErr
}

func (w *WAL) run() {
	defer close(w.doneCh)

	var buf bytes.Buffer
	var acks []chan error
	count := 0
	ticker := time.NewTicker(w.batchInterval)
	defer ticker.Stop()

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		_, err := w.file.Write(buf.Bytes())
		if err == nil {
			err = w.file.Sync()
		}
		if err != nil {
			w.poisoned.Store(true)
			err = nexuserr.Wrap(nexuserr.KindDurability, err, "WAL flush/fsync failed")
		}
		for _, a := range acks {
			a <- err
		}
		acks = acks[:0]
		buf.Reset()
		count = 0
	}

	handle := func(req request, ok bool) bool {
		if !ok {
			return false
		}
		buf.Write(encodeEntry(req.entry))
		count++
		if req.ack != nil {
			acks = append(acks, req.ack)
		}
		if count >= w.batchCount || req.entry.Kind == KindTxCommit {
			flush()
		}
		return true
	}

	for {
		select {
		case req, ok := <-w.ch:
			if !handle(req, ok) {
				flush()
				return
			}
		case <-ticker.C:
			flush()
		}
	}
}
