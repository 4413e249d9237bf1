// Package txn implements C6: the TransactionManager. One writer transaction
// runs at a time, serialized by a process-wide mutex held from BeginWrite
// until its commit or abort; any number of readers run concurrently with the writer
// and with each other, each pinned to a snapshot epoch taken at begin
// (spec.md §4.6, §5).
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/wal"
)

// State is a transaction's position in the Active -> Committing ->
// Committed / Active -> Aborted state machine (spec.md §4.6).
type State int

const (
	StateActive State = iota
	StateCommitting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateCommitting:
		return "Committing"
	case StateCommitted:
		return "Committed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// ReversalStep is one entry in a writer's undo list: a closure that
// reverses one in-memory mutation (an index add, a property chain
// splice, ...). PreExisting distinguishes "this tx created the
// structure the entry lives in" from "the structure already existed and
// only the entry needs removing" — the flag spec.md §9 Open Question 3
// calls for, so rollback of a lazily-populated relationship index inside
// the same transaction can tell "tear the whole thing down" apart from
// "just remove what I added".
type ReversalStep struct {
	Description string
	PreExisting bool
	Undo        func() error
}

// Tx is one transaction handle. Readers only ever reach StateActive and
// then are ended (no commit/abort distinction matters for them, since
// they mutate nothing); writers move through the full state machine.
type Tx struct {
	mgr      *Manager
	id       uint64
	epoch    uint64
	writer   bool
	state    State
	mu       sync.Mutex
	created  struct {
		nodes []uint64
		rels  []uint64
	}
	reversal []ReversalStep

	// walEntries accumulates the LSNs of the WAL entries this transaction
	// produced, in enqueue order.
	walEntries []uint64
}

// ID returns the transaction's id.
func (t *Tx) ID() uint64 { return t.id }

// Epoch returns the transaction's snapshot (reader) or assigned (writer)
// epoch.
func (t *Tx) Epoch() uint64 { return t.epoch }

// State returns the transaction's current state.
func (t *Tx) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsWriter reports whether this is a writer transaction.
func (t *Tx) IsWriter() bool { return t.writer }

// RecordCreatedNode tracks a node id this writer transaction allocated,
// so Abort can reason about what it needs to unwind.
func (t *Tx) RecordCreatedNode(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.created.nodes = append(t.created.nodes, id)
}

// RecordCreatedRelationship mirrors RecordCreatedNode for relationships.
func (t *Tx) RecordCreatedRelationship(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.created.rels = append(t.created.rels, id)
}

// CreatedNodes and CreatedRelationships return the ids this transaction
// has allocated so far.
func (t *Tx) CreatedNodes() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint64(nil), t.created.nodes...)
}

func (t *Tx) CreatedRelationships() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint64(nil), t.created.rels...)
}

// AddReversal appends an undo step. Every in-memory index mutation
// performed under a writer transaction must register one (spec.md §4.6
// "Each writer tracks ... a reversal plan for each index mutation
// performed. ... This reversal list is a first-class artifact of the
// design").
func (t *Tx) AddReversal(step ReversalStep) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reversal = append(t.reversal, step)
}

// LogWAL appends a fire-and-forget physical entry under this transaction.
func (t *Tx) LogWAL(kind wal.Kind, payload []byte) error {
	if !t.writer {
		return nexuserr.New(nexuserr.KindConstraint, "tx %d is read-only, cannot append WAL entries", t.id)
	}
	lsn, err := t.mgr.log.Append(kind, t.id, payload)
	if err != nil {
		t.fail()
		return err
	}
	t.mu.Lock()
	t.walEntries = append(t.walEntries, lsn)
	t.mu.Unlock()
	return nil
}

func (t *Tx) fail() {
	t.mu.Lock()
	t.state = StateAborted
	t.mu.Unlock()
}

// Manager is the process-wide transaction manager: it hands out epochs,
// serializes writers, and tracks the set of epochs any active reader
// might still observe (spec.md §4.6, §5).
type Manager struct {
	log *wal.WAL

	writerMu sync.Mutex // held for the duration of a writer's Active->Commit/Abort lifetime

	committedEpoch atomic.Uint64
	nextTxID       atomic.Uint64

	readersMu sync.Mutex
	readerEpochRefs map[uint64]int
}

// New creates a Manager writing through log.
func New(log *wal.WAL) *Manager {
	return &Manager{
		log:             log,
		readerEpochRefs: make(map[uint64]int),
	}
}

// BeginRead starts a read-only transaction pinned to the current
// committed epoch (spec.md §4.6 visibility rule; §5 "A reader takes its
// snapshot epoch atomically at begin").
func (m *Manager) BeginRead() *Tx {
	epoch := m.committedEpoch.Load()
	m.readersMu.Lock()
	m.readerEpochRefs[epoch]++
	m.readersMu.Unlock()

	return &Tx{mgr: m, id: m.nextTxID.Add(1), epoch: epoch, writer: false, state: StateActive}
}

// EndRead releases a reader's pin on its snapshot epoch. Callers MUST call
// this on every exit path (spec.md §5 "Resource acquisition").
func (m *Manager) EndRead(t *Tx) {
	if t.writer {
		return
	}
	m.readersMu.Lock()
	m.readerEpochRefs[t.epoch]--
	if m.readerEpochRefs[t.epoch] <= 0 {
		delete(m.readerEpochRefs, t.epoch)
	}
	m.readersMu.Unlock()
	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
}

// BeginWrite acquires the process-wide writer lock and assigns an epoch
// strictly greater than any committed epoch so far (spec.md §4.6). It
// blocks until any prior writer has committed or aborted, which is the
// single-writer simplification spec.md §5/§9 chooses deliberately.
func (m *Manager) BeginWrite() (*Tx, error) {
	m.writerMu.Lock()
	epoch := m.committedEpoch.Load() + 1
	t := &Tx{mgr: m, id: m.nextTxID.Add(1), epoch: epoch, writer: true, state: StateActive}
	if err := t.LogWAL(wal.KindTxBegin, nil); err != nil {
		m.writerMu.Unlock()
		return nil, err
	}
	return t, nil
}

// Commit finalizes a writer transaction: it blocks on the WAL writer
// acknowledging the TX_COMMIT entry's durability, then publishes the
// epoch as committed. Per spec.md §4.6, commit writes TX_COMMIT last, so
// no entry for this transaction can ever be ordered after it.
func (m *Manager) Commit(t *Tx) error {
	if !t.writer {
		return nexuserr.New(nexuserr.KindConstraint, "tx %d is read-only, nothing to commit", t.id)
	}
	defer m.writerMu.Unlock()

	t.mu.Lock()
	if t.state != StateActive {
		st := t.state
		t.mu.Unlock()
		return nexuserr.New(nexuserr.KindConstraint, "tx %d cannot commit from state %s", t.id, st)
	}
	t.state = StateCommitting
	t.mu.Unlock()

	if _, err := m.log.Commit(t.id, nil); err != nil {
		t.mu.Lock()
		t.state = StateAborted
		t.mu.Unlock()
		return err
	}

	m.committedEpoch.Store(t.epoch)

	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
	return nil
}

// Abort rolls back every registered reversal step in reverse order and
// moves the transaction to StateAborted. No WAL entry for an aborted
// transaction's mutations can ever have preceded a TX_COMMIT for it,
// since TX_COMMIT is only ever written by Commit (spec.md §4.6).
func (m *Manager) Abort(t *Tx) error {
	if !t.writer {
		return nexuserr.New(nexuserr.KindConstraint, "tx %d is read-only, nothing to abort", t.id)
	}
	defer m.writerMu.Unlock()

	t.mu.Lock()
	steps := append([]ReversalStep(nil), t.reversal...)
	t.state = StateAborted
	t.mu.Unlock()

	var firstErr error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].Undo(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OldestActiveEpoch returns the lowest snapshot epoch of any live reader,
// or the current committed epoch if there are no active readers. Compact()
// uses this to decide which tombstones no reader can still see, and
// Checkpoint to decide when old WAL segments can be deleted (spec.md §3
// "Lifecycle").
func (m *Manager) OldestActiveEpoch() uint64 {
	m.readersMu.Lock()
	defer m.readersMu.Unlock()
	oldest := m.committedEpoch.Load()
	for epoch, refs := range m.readerEpochRefs {
		if refs > 0 && epoch < oldest {
			oldest = epoch
		}
	}
	return oldest
}

// CommittedEpoch returns the current globally committed epoch.
func (m *Manager) CommittedEpoch() uint64 { return m.committedEpoch.Load() }

// Visible implements spec.md §4.6's visibility rule: a reader at epoch R
// observes a record with (created, deleted) iff created <= R and
// (deleted == 0 or deleted > R).
func Visible(readEpoch, created, deleted uint64) bool {
	if created > readEpoch {
		return false
	}
	return deleted == 0 || deleted > readEpoch
}
