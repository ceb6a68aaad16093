package txn

import (
	"sort"
	"sync/atomic"
)

// Sequence is an immutable, sorted-descending snapshot of currently
// active transactions' start timestamps (spec.md §4.4 TransactionSequence).
// It is reference counted rather than garbage collected outright because
// it is handed out to many concurrent readers and to the rebalancer as
// pruning input; once refs drops to zero it is eligible for epoch
// reclamation.
type Sequence struct {
	starts []uint64
	refs   atomic.Int32
}

// NewSequence builds a Sequence from a thread context's List snapshot,
// sorting the start timestamps into descending order. The returned
// Sequence starts with a single reference held by the caller.
func NewSequence(starts []uint64) *Sequence {
	cp := make([]uint64, len(starts))
	copy(cp, starts)
	sort.Slice(cp, func(i, j int) bool { return cp[i] > cp[j] })
	s := &Sequence{starts: cp}
	s.refs.Store(1)
	return s
}

// Acquire increments the reference count and returns s, for callers
// handing the same Sequence to another holder.
func (s *Sequence) Acquire() *Sequence {
	s.refs.Add(1)
	return s
}

// Release decrements the reference count, returning true if this was
// the last reference (the caller may now hand the Sequence to the
// epoch GC).
func (s *Sequence) Release() bool {
	return s.refs.Add(-1) == 0
}

// StartTimestamps returns the sorted-descending active start
// timestamps backing this snapshot. The caller must not mutate it.
func (s *Sequence) StartTimestamps() []uint64 { return s.starts }

// Oldest returns the smallest active start timestamp, or ok=false if
// the sequence is empty (no active readers to protect any history).
func (s *Sequence) Oldest() (ts uint64, ok bool) {
	if len(s.starts) == 0 {
		return 0, false
	}
	return s.starts[len(s.starts)-1], true
}

// VisibleTo reports whether a committed timestamp commitTS would be
// visible to every transaction represented in the sequence, i.e. none
// of them started before commitTS (a conservative watermark check).
func (s *Sequence) VisibleTo(commitTS uint64) bool {
	for _, start := range s.starts {
		if start < commitTS {
			return false
		}
	}
	return true
}
