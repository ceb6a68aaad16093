package txn

import (
	"sync"
	"sync/atomic"

	"github.com/dreamware/teseograph/internal/coreerr"
	"github.com/dreamware/teseograph/internal/undo"
)

// State is a transaction's position in its state machine.
type State int

const (
	Pending State = iota
	Committed
	Aborted
	errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case errored:
		return "error"
	default:
		return "unknown"
	}
}

// writeLockBit is added to start_ts to produce ts_write for a PENDING or
// ERROR transaction, so that no other transaction's ts_read can exceed
// it (spec.md §4.4). 1<<63 keeps the encoding within a single uint64
// word, which is what optimistic readers validate against.
const writeLockBit = uint64(1) << 63

// PropertyFolder receives a committing transaction's accumulated
// vertex/edge count deltas, folding them into the engine-wide
// PropertySnapshotList (spec.md §4.4 Commit, §4.8).
type PropertyFolder interface {
	Fold(commitTS uint64, deltaVertex, deltaEdge int64)
}

// Transaction is a single unit of work: it owns a private undo arena,
// tracks its state under its own latch, and (via Commit/Rollback) is
// the undo.Owner consulted by every version chain it touched.
type Transaction struct {
	id      uint64
	startTS uint64
	clock   *Clock
	folder  PropertyFolder

	mu       sync.Mutex
	state    State
	commitTS uint64

	arena *undo.Arena

	deltaVertex int64
	deltaEdge   int64

	readOnly bool

	iteratorsActive atomic.Int32
}

// New creates a PENDING transaction with a fresh start timestamp drawn
// from clock. folder may be nil for read-only transactions, which never
// produce a property delta to fold.
func New(clock *Clock, folder PropertyFolder, readOnly bool) *Transaction {
	return NewWithArena(clock, folder, readOnly, undo.NewArena(64))
}

// NewWithArena is New, but takes over arena instead of allocating a
// fresh one. arena must already be Reset (or newly allocated). This is
// the hook the runtime's per-worker transaction pool uses to hand a
// recycled Arena to a new transaction instead of growing a new one.
func NewWithArena(clock *Clock, folder PropertyFolder, readOnly bool, arena *undo.Arena) *Transaction {
	return &Transaction{
		id:       clock.Next(),
		startTS:  clock.Next(),
		clock:    clock,
		folder:   folder,
		state:    Pending,
		arena:    arena,
		readOnly: readOnly,
	}
}

// TxID implements undo.Owner.
func (t *Transaction) TxID() uint64 { return t.id }

// StartTS implements undo.Owner.
func (t *Transaction) StartTS() uint64 { return t.startTS }

// CommitTS implements undo.Owner: it returns the assigned commit
// timestamp and true once the transaction has committed.
func (t *Transaction) CommitTS() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitTS, t.state == Committed
}

// State returns the transaction's current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// TSWrite is the compact "is this slot locked by a write in flight"
// word optimistic readers compare against: start_ts + 2^63 while PENDING
// or in ERROR, plain start_ts once terminated (spec.md §4.4).
func (t *Transaction) TSWrite() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Pending || t.state == errored {
		return t.startTS + writeLockBit
	}
	return t.startTS
}

// ReadOnly reports whether the transaction was opened read-only.
func (t *Transaction) ReadOnly() bool { return t.readOnly }

// Arena returns the transaction's private undo-record allocator.
func (t *Transaction) Arena() *undo.Arena { return t.arena }

// AddDelta accumulates a vertex/edge count change caused by a write
// this transaction made, folded into the global snapshot list on
// commit.
func (t *Transaction) AddDelta(deltaVertex, deltaEdge int64) {
	atomicAddInt64(&t.deltaVertex, deltaVertex)
	atomicAddInt64(&t.deltaEdge, deltaEdge)
}

// MarkErrored transitions a still-pending transaction into the ERROR
// state, from which only Rollback is a legal next step.
func (t *Transaction) MarkErrored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Pending {
		t.state = errored
	}
}

// BeginIteration and EndIteration guard the invariant that a
// transaction cannot be terminated while one of its iterators is still
// executing (spec.md §6, §8 scenario 6).
func (t *Transaction) BeginIteration() { t.iteratorsActive.Add(1) }
func (t *Transaction) EndIteration()   { t.iteratorsActive.Add(-1) }

// Commit assigns a commit timestamp and folds the transaction's
// property delta into the global snapshot list (spec.md §4.4 Commit).
// It fails if an iterator over this transaction is still running, or if
// the transaction is not PENDING.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.iteratorsActive.Load() > 0 {
		return coreerr.NewLogicalError("the transaction cannot be terminated while an iterator is executing")
	}
	switch t.state {
	case errored:
		return coreerr.NewLogicalError("transaction %d cannot commit: it is in the error state", t.id)
	case Committed, Aborted:
		return coreerr.NewLogicalError("transaction %d is already terminated", t.id)
	}

	t.commitTS = t.clock.Next()
	t.state = Committed
	if t.folder != nil && (t.deltaVertex != 0 || t.deltaEdge != 0) {
		t.folder.Fold(t.commitTS, t.deltaVertex, t.deltaEdge)
	}
	return nil
}

// Rollback walks the transaction's own undo records newest-first,
// asking each one's slot to reinstall its pre-image, then marks the
// transaction ABORTED (spec.md §4.4 Rollback).
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.iteratorsActive.Load() > 0 {
		return coreerr.NewLogicalError("the transaction cannot be terminated while an iterator is executing")
	}
	if t.state == Committed || t.state == Aborted {
		return coreerr.NewLogicalError("transaction %d is already terminated", t.id)
	}

	records := t.arena.Records()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Slot != nil {
			rec.Slot.Reinstall(rec)
		}
	}
	t.state = Aborted
	return nil
}

func atomicAddInt64(addr *int64, delta int64) {
	for {
		old := atomic.LoadInt64(addr)
		if atomic.CompareAndSwapInt64(addr, old, old+delta) {
			return
		}
	}
}
