package graph

import (
	"context"

	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/memstore"
)

// Iterator is a resumable, cursor-backed walk over a transaction's
// snapshot (spec.md §6 "iterator()", §4.6 CursorState). Successive
// Edges calls for ascending vertex ids reuse the same held segment
// reader latch and never repeat a trie lookup unless the walk has to
// leave the segment range it already holds (spec.md §8 scenario 5).
//
// While an Iterator obtained from a Transaction is open, that
// Transaction's Commit and Rollback fail (spec.md §8 scenario 6); call
// Close once the walk is done to lift the guard.
type Iterator struct {
	t      *Transaction
	cur    *memstore.CursorState
	closed bool
}

// Edges walks v's outgoing edges in ascending destination order,
// invoking fn(dst, weight) for each one visible under logical's
// meaning — true resolves the MVCC-visible value the way ScanOut does,
// false walks the segment's physical (pre-visibility) storage,
// surfacing whatever is live in the entry regardless of this
// transaction's snapshot. fn returning false stops the walk early
// (spec.md §6 "edges(v, logical, callback)").
func (it *Iterator) Edges(ctx context.Context, v uint64, logical bool, fn func(dst uint64, weight float64) bool) error {
	from := key.Key{Source: v, Destination: key.NoVertex + 1}
	if err := it.positionAt(ctx, from); err != nil {
		return err
	}

	for it.cur != nil {
		stop := false
		boundary := false
		it.cur.Segment().Ascend(it.cur.Key(), func(e *memstore.Entry) bool {
			if e.Key.Source != v {
				boundary = true
				return false
			}
			w, exists := it.value(e, logical)
			it.cur.Advance(e.Key)
			if !exists {
				return true
			}
			if !fn(e.Key.Destination, w) {
				stop = true
				return false
			}
			return true
		})
		if stop || boundary {
			it.cur.Pause()
			return nil
		}
		if err := it.advanceSegment(ctx); err != nil {
			return err
		}
	}
	return nil
}

// value resolves e's yielded (weight, exists) pair per logical's
// meaning (see Edges).
func (it *Iterator) value(e *memstore.Entry, logical bool) (float64, bool) {
	if !logical {
		return e.Weight, e.Exists
	}
	return memstore.Visible(e, it.t.tx.TxID(), it.t.tx.StartTS())
}

// positionAt makes the iterator's cursor point at from, reusing the
// currently held segment (crossing forward through segments and, if
// necessary, leaves) whenever from already falls at or after it, and
// only falling back to a fresh trie lookup when the cursor is unset,
// invalidated, or from precedes the segment the cursor already holds.
func (it *Iterator) positionAt(ctx context.Context, from key.Key) error {
	if it.cur == nil {
		return it.openFromIndex(ctx, from)
	}

	ok, err := it.cur.Resume(ctx)
	if err != nil {
		return err
	}
	if !ok {
		it.cur.Close()
		return it.openFromIndex(ctx, from)
	}
	if from.Less(it.cur.Segment().FenceLo()) {
		it.cur.Close()
		return it.openFromIndex(ctx, from)
	}

	for it.cur != nil && it.cur.Segment().FenceHi().Less(from) {
		if err := it.advanceSegment(ctx); err != nil {
			return err
		}
	}
	if it.cur != nil {
		it.cur.Advance(from)
	}
	return nil
}

// openFromIndex resolves from through the trie from scratch and opens
// a fresh cursor on the segment that contains it.
func (it *Iterator) openFromIndex(ctx context.Context, from key.Key) error {
	leaf := it.t.g.ms.LeafFor(from)
	if leaf == nil {
		it.cur = nil
		return nil
	}
	seg := leaf.SegmentFor(from)
	if seg == nil {
		it.cur = nil
		return nil
	}
	cur, err := memstore.OpenCursor(ctx, leaf, leaf.SegmentIndex(seg), from)
	if err != nil {
		return err
	}
	it.cur = cur
	return nil
}

// advanceSegment moves the cursor to the next segment in its current
// leaf, or to the first segment of the next leaf once the current
// leaf's segments are exhausted, setting it.cur to nil once the index
// has nothing left (mirrors Memstore.Scan's own crossing logic).
func (it *Iterator) advanceSegment(ctx context.Context) error {
	nextIdx := it.cur.Leaf().SegmentIndex(it.cur.Segment()) + 1
	if nextIdx < len(it.cur.Leaf().Segments) {
		nextSeg := it.cur.Leaf().Segments[nextIdx]
		return it.cur.CrossSegment(ctx, it.cur.Leaf(), nextIdx, nextSeg.FenceLo())
	}

	nextKey := key.Key{Source: it.cur.Leaf().FenceHi().Source + 1}
	nextLeaf := it.t.g.ms.LeafFor(nextKey)
	if nextLeaf == nil || nextLeaf == it.cur.Leaf() {
		it.cur.Close()
		it.cur = nil
		return nil
	}
	return it.cur.CrossSegment(ctx, nextLeaf, 0, nextLeaf.Segments[0].FenceLo())
}

// Close releases the iterator's held cursor (if any) and lifts the
// "cannot terminate while iterating" guard on its parent transaction.
// Safe to call more than once.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if it.cur != nil {
		it.cur.Close()
	}
	it.t.tx.EndIteration()
}
