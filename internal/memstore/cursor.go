package memstore

import (
	"context"
	"errors"

	"github.com/dreamware/teseograph/internal/key"
)

// errCursorClosed is returned by Resume once Close has been called.
var errCursorClosed = errors.New("cursor closed")

// CursorState is a durable exact-reader position: (leaf, segment,
// key, version) that can be paused (releasing the reader latch between
// batches of callbacks) and resumed later (spec.md §4.6 CursorState).
// If the segment was written to while paused, Resume reports the
// cursor invalid and the caller restarts from the trie using Key().
type CursorState struct {
	leaf         *Leaf
	segmentIndex int
	key          key.Key
	version      uint64
	held         bool
	closed       bool
}

// OpenCursor acquires the reader latch on leaf's segmentIndex'th
// segment and returns a live cursor positioned at k.
func OpenCursor(ctx context.Context, leaf *Leaf, segmentIndex int, k key.Key) (*CursorState, error) {
	seg := leaf.Segments[segmentIndex]
	if err := seg.AcquireRead(ctx); err != nil {
		return nil, err
	}
	return &CursorState{
		leaf:         leaf,
		segmentIndex: segmentIndex,
		key:          k,
		version:      seg.Latch.Version(),
		held:         true,
	}, nil
}

// Segment returns the segment the cursor currently refers to.
func (c *CursorState) Segment() *Segment { return c.leaf.Segments[c.segmentIndex] }

// Leaf returns the leaf the cursor currently refers to.
func (c *CursorState) Leaf() *Leaf { return c.leaf }

// Key returns the last position the cursor was advanced to; valid to
// read whether or not the reader latch is currently held.
func (c *CursorState) Key() key.Key { return c.key }

// Advance records the cursor's new position after yielding an entry.
func (c *CursorState) Advance(k key.Key) { c.key = k }

// Held reports whether the cursor currently holds its segment's reader
// latch.
func (c *CursorState) Held() bool { return c.held }

// Pause releases the held reader latch, recording the segment's
// version so a later Resume can detect an intervening write.
func (c *CursorState) Pause() {
	if !c.held {
		return
	}
	c.version = c.Segment().Latch.Version()
	c.Segment().ReleaseRead()
	c.held = false
}

// Resume re-acquires the reader latch and validates that the segment
// has not been written to (or the leaf invalidated) since Pause. A
// false result means the cursor is no longer valid; the caller must
// restart from the trie using Key().
func (c *CursorState) Resume(ctx context.Context) (bool, error) {
	if c.closed {
		return false, errCursorClosed
	}
	if c.held {
		return true, nil
	}
	if c.leaf.IsInvalid() {
		return false, nil
	}
	seg := c.Segment()
	if err := seg.AcquireRead(ctx); err != nil {
		return false, err
	}
	if seg.Latch.Version() != c.version {
		seg.ReleaseRead()
		return false, nil
	}
	c.held = true
	return true, nil
}

// CrossSegment closes the cursor's hold on its current segment and
// opens a fresh one on (leaf, segmentIndex) at key k, used when a scan
// walks past the end of one segment into the next (possibly in a
// different leaf).
func (c *CursorState) CrossSegment(ctx context.Context, leaf *Leaf, segmentIndex int, k key.Key) error {
	c.Close()
	seg := leaf.Segments[segmentIndex]
	if err := seg.AcquireRead(ctx); err != nil {
		return err
	}
	c.leaf = leaf
	c.segmentIndex = segmentIndex
	c.key = k
	c.version = seg.Latch.Version()
	c.held = true
	c.closed = false
	return nil
}

// Close releases the held reader latch, if any, and marks the cursor
// unusable. A cursor must eventually be closed (spec.md §4.6: "a cursor
// must eventually be close'd").
func (c *CursorState) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.held {
		c.Segment().ReleaseRead()
		c.held = false
	}
}
