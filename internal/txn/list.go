package txn

import (
	"sync"
	"sync/atomic"

	"github.com/dreamware/teseograph/internal/coreerr"
)

// DefaultListCapacity is the bounded size of a TransactionList (spec.md
// §4.4: "capacity small, e.g., 32").
const DefaultListCapacity = 32

// List is a thread context's bounded set of currently-open
// transactions. Insert/Remove hold a writer lock and publish a new
// backing slice; version is bumped around the publish so a reader that
// captured a pointer before a concurrent mutation can detect it needs
// to retry, matching spec.md §4.4's version-stamped optimistic latch,
// without requiring the snapshot read itself to race the slice header.
type List struct {
	mu       sync.Mutex // serializes writers against each other
	version  atomic.Uint64
	entries  atomic.Pointer[[]*Transaction]
	capacity int
}

// NewList returns an empty List bounded at capacity entries.
func NewList(capacity int) *List {
	if capacity <= 0 {
		capacity = DefaultListCapacity
	}
	l := &List{capacity: capacity}
	empty := make([]*Transaction, 0, capacity)
	l.entries.Store(&empty)
	return l
}

// Insert appends tx to the list, failing with ErrCapacity once the
// bound is reached.
func (l *List) Insert(tx *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := *l.entries.Load()
	if len(cur) >= l.capacity {
		return coreerr.ErrCapacity
	}
	l.version.Add(1)
	next := make([]*Transaction, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, tx)
	l.entries.Store(&next)
	l.version.Add(1)
	return nil
}

// Remove drops tx from the list by moving the last entry into its
// position, so order among the remaining entries is not preserved.
func (l *List) Remove(tx *Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := *l.entries.Load()
	idx := -1
	for i, e := range cur {
		if e == tx {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	l.version.Add(1)
	next := make([]*Transaction, len(cur))
	copy(next, cur)
	last := len(next) - 1
	next[idx] = next[last]
	next = next[:last]
	l.entries.Store(&next)
	l.version.Add(1)
}

// Snapshot returns the start timestamps of every transaction currently
// in the list. The version check exists for parity with the retry
// convention the rest of the engine's optimistic readers use; since
// entries is always replaced wholesale, a single read is already
// consistent and the loop below never actually needs to spin.
func (l *List) Snapshot() []uint64 {
	for {
		v1 := l.version.Load()
		if v1%2 == 1 {
			continue
		}
		entries := *l.entries.Load()
		starts := make([]uint64, 0, len(entries))
		for _, e := range entries {
			starts = append(starts, e.StartTS())
		}
		if l.version.Load() == v1 {
			return starts
		}
	}
}

// Len returns the number of currently-tracked transactions.
func (l *List) Len() int {
	return len(*l.entries.Load())
}
