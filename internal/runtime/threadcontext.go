package runtime

import (
	"sync"

	"github.com/dreamware/teseograph/internal/epoch"
	"github.com/dreamware/teseograph/internal/txn"
)

// ThreadContext is the per-thread-of-control state a caller registers
// once before issuing transactions and unregisters once it is done:
// its epoch slot, its bounded list of currently-open transactions, and
// a cached TransactionSequence snapshot of the start timestamps in its
// own List (spec.md §4.8, grounded on the teacher's
// context::ThreadContext). Exactly one goroutine should drive a given
// ThreadContext at a time; List itself is safe for concurrent Insert
// or Remove from elsewhere, but register/unregister/Refresh are not.
type ThreadContext struct {
	List *txn.List

	manager *epoch.Manager
	gc      *epoch.GC
	slot    *epoch.Slot

	mu  sync.Mutex
	seq *txn.Sequence
}

// NewThreadContext returns an unregistered ThreadContext with a
// transaction list bounded at listCapacity (0 selects
// txn.DefaultListCapacity). Submit a RegisterThreadContext task before
// beginning transactions against it.
func NewThreadContext(listCapacity int) *ThreadContext {
	return &ThreadContext{List: txn.NewList(listCapacity)}
}

// register claims an epoch slot and seeds an empty cached sequence.
// Called only from a worker's dispatch loop for the RegisterThreadContext task.
func (tc *ThreadContext) register(manager *epoch.Manager, gc *epoch.GC) {
	tc.manager = manager
	tc.gc = gc
	tc.slot = manager.Register()
	tc.mu.Lock()
	tc.seq = txn.NewSequence(nil)
	tc.mu.Unlock()
}

// unregister hands the thread context's still-queued GC items to the
// orphan queue and releases its epoch slot. Called only from a
// worker's dispatch loop for the UnregisterThreadContext task.
func (tc *ThreadContext) unregister() {
	if tc.slot == nil {
		return
	}
	tc.gc.Unregister(tc.slot)
	tc.manager.Unregister(tc.slot)
}

// EnterEpoch stamps this context's slot with a fresh epoch, to be
// called before a traversal that may dereference reclaimable
// structures (memstore reads, undo chain walks).
func (tc *ThreadContext) EnterEpoch() uint64 { return tc.manager.EnterEpoch(tc.slot) }

// ExitEpoch publishes Idle, telling the collector this thread holds no
// more references requiring the epoch window to stay open.
func (tc *ThreadContext) ExitEpoch() { tc.manager.ExitEpoch(tc.slot) }

// Sequence returns the thread context's cached TransactionSequence
// snapshot, last produced by Refresh (or an empty one if Refresh has
// never run since register).
func (tc *ThreadContext) Sequence() *txn.Sequence {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.seq
}

// Refresh replaces the cached TransactionSequence with a fresh
// snapshot of List's current contents, retiring the old one through
// the epoch GC rather than dropping it outright: a reader elsewhere may
// still hold the old Sequence and Release it only once done, so it is
// freed only once no registered thread could still be dereferencing it
// (spec.md §4.4, §4.8's periodic thread-context refresh).
func (tc *ThreadContext) Refresh() {
	fresh := txn.NewSequence(tc.List.Snapshot())
	tc.mu.Lock()
	old := tc.seq
	tc.seq = fresh
	tc.mu.Unlock()
	if old == nil {
		return
	}
	stamp := tc.manager.Tick()
	tc.gc.Mark(tc.slot, stamp, func() { old.Release() })
}
