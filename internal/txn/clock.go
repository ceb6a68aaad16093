// Package txn implements the transaction manager: the global clock,
// per-transaction state machine with undo-backed rollback, the bounded
// per-thread TransactionList, and the immutable TransactionSequence used
// both for visibility and for chain pruning (spec.md §4.4).
package txn

import "sync/atomic"

// Clock is the engine's single monotonic timestamp source. Both start
// and commit timestamps are drawn from the same stream (spec.md §4.4:
// "the system uses the single stream and treats odd vs even positions
// uniformly").
type Clock struct {
	counter atomic.Uint64
}

// NewClock returns a Clock whose first Next() is 1; 0 is reserved so
// the zero value of a timestamp field can mean "unset".
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the counter and returns its new value.
func (c *Clock) Next() uint64 {
	return c.counter.Add(1)
}

// Peek returns the most recently issued timestamp without advancing the
// counter, for callers that need "now" for a point-in-time read (e.g. a
// vertex/edge count query) without reserving a timestamp of their own.
func (c *Clock) Peek() uint64 {
	return c.counter.Load()
}
