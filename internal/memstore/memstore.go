package memstore

import (
	"context"

	"github.com/dreamware/teseograph/internal/coreerr"
	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/txn"
	"github.com/dreamware/teseograph/internal/undo"
)

// UpdateKind distinguishes the two write operations a segment handles
// (spec.md §4.5 "update = {Insert|Remove, Key, Weight?}").
type UpdateKind int

const (
	Insert UpdateKind = iota
	Remove
)

// Update is a single change routed to a segment by its Key's source.
type Update struct {
	Kind   UpdateKind
	Key    key.Key
	Weight float64
}

// Memstore owns the trie index; Write and Scan are its two entry
// points (spec.md §4.9 "The Memstore owns the trie index and the
// merger service").
type Memstore struct {
	index *Index
}

// New returns a Memstore indexing a single root leaf spanning the
// entire key space.
func New(root *Leaf) *Memstore {
	return &Memstore{index: NewIndex(root)}
}

// Index exposes the trie collaborator, used by the rebalancer to
// publish/retract leaves.
func (m *Memstore) Index() *Index { return m.index }

// LeafFor returns the leaf currently indexed for k, or nil if the trie
// holds none. Callers that see Write fail with coreerr.ErrCapacity use
// this to find the leaf to hand to a rebalance request before retrying.
func (m *Memstore) LeafFor(k key.Key) *Leaf { return m.index.Lookup(k) }

// Write locates update.Key's segment via the trie, acquires its write
// latch, and applies the update under tx's ownership, restarting from
// the trie whenever it observes an invalidated segment (spec.md §4.5).
func (m *Memstore) Write(ctx context.Context, tx *txn.Transaction, update Update) error {
	var sourceExists *bool
	for {
		leaf := m.index.Lookup(update.Key)
		if leaf == nil {
			return coreerr.ErrFatal
		}
		seg := leaf.SegmentFor(update.Key)
		if seg == nil {
			return coreerr.ErrFatal
		}

		if err := seg.AcquireWrite(ctx); err != nil {
			return err
		}
		if seg.Latch.IsInvalid() {
			seg.ReleaseWrite()
			continue
		}

		err := m.applyLocked(seg, tx, update, sourceExists)
		seg.ReleaseWrite()

		switch {
		case err == nil:
			return nil
		case err == errNotSureHasSource:
			has, verr := m.verifySource(ctx, update.Key)
			if verr != nil {
				return verr
			}
			sourceExists = &has
			continue
		default:
			return err
		}
	}
}

// applyLocked performs the actual mutation; the caller must hold seg's
// write latch. sourceExists carries a prior resolution of the source
// vertex's existence once errNotSureHasSource has forced the caller to
// verify it out-of-latch (spec.md §4.5 step 6); nil means unresolved.
func (m *Memstore) applyLocked(seg *Segment, tx *txn.Transaction, update Update, sourceExists *bool) error {
	if update.Kind == Insert && !update.Key.IsVertex() {
		if update.Key.Source == update.Key.Destination {
			return &coreerr.EdgeError{Source: update.Key.Source, Destination: update.Key.Destination, Reason: coreerr.ReasonSelfEdge}
		}
		has := false
		if sourceExists != nil {
			has = *sourceExists
		} else {
			var err error
			has, err = m.hasSourceVertex(seg, update.Key)
			if err != nil {
				return err
			}
		}
		if !has {
			return &coreerr.EdgeError{Source: update.Key.Source, Destination: update.Key.Destination, Reason: coreerr.ReasonDoesNotExist}
		}
	}

	if update.Kind == Insert {
		if _, present := seg.Get(update.Key); !present && seg.AtCapacity() {
			return coreerr.ErrCapacity
		}
	}

	e := seg.GetOrCreate(update.Key)
	if undo.HasWriteConflict(e.Head, tx.TxID(), tx.StartTS()) {
		return &coreerr.TransactionConflict{Key: update.Key.String()}
	}

	switch update.Kind {
	case Insert:
		if e.Exists {
			return logicalExistsError(update.Key)
		}
		rec := tx.Arena().Alloc()
		*rec = undo.Record{Owner: tx, Next: e.Head, Op: undo.OpInsert, Slot: e}
		e.Head = rec
		e.Exists = true
		e.Weight = update.Weight
		tx.AddDelta(deltas(update.Key, 1))
	case Remove:
		if !e.Exists {
			return logicalNotExistsError(update.Key)
		}
		rec := tx.Arena().Alloc()
		*rec = undo.Record{Owner: tx, Next: e.Head, Op: undo.OpRemove, Payload: e.Weight, Slot: e}
		e.Head = rec
		e.Exists = false
		tx.AddDelta(deltas(update.Key, -1))
	}
	return nil
}

// hasSourceVertex checks whether update.Key's source vertex exists,
// per spec.md §4.5 step 6 / §4.9's "two-segment check": a vertex always
// sorts before its own edges, so it lives either in the same segment or
// one the trie can resolve directly; if the current segment's fences
// don't cover the vertex key, errNotSureHasSource tells Write to confirm
// the vertex via the trie (verifySource) and retry with the result.
func (m *Memstore) hasSourceVertex(seg *Segment, k key.Key) (bool, error) {
	vertexKey := key.Vertex(k.Source)
	if seg.Contains(vertexKey) {
		e, ok := seg.Get(vertexKey)
		return ok && e.Exists, nil
	}
	return false, errNotSureHasSource
}

// verifySource resolves errNotSureHasSource by looking the source
// vertex up through the trie directly, under its own reader latch.
func (m *Memstore) verifySource(ctx context.Context, k key.Key) (bool, error) {
	vertexKey := key.Vertex(k.Source)
	vleaf := m.index.Lookup(vertexKey)
	if vleaf == nil {
		return false, nil
	}
	vseg := vleaf.SegmentFor(vertexKey)
	if vseg == nil {
		return false, nil
	}
	if err := vseg.AcquireRead(ctx); err != nil {
		return false, err
	}
	defer vseg.ReleaseRead()
	e, ok := vseg.Get(vertexKey)
	return ok && e.Exists, nil
}

func deltas(k key.Key, sign int64) (int64, int64) {
	if k.IsVertex() {
		return sign, 0
	}
	return 0, sign
}

func logicalExistsError(k key.Key) error {
	if k.IsVertex() {
		return &coreerr.VertexError{Vertex: k.Source, Reason: coreerr.ReasonAlreadyExists}
	}
	return &coreerr.EdgeError{Source: k.Source, Destination: k.Destination, Reason: coreerr.ReasonAlreadyExists}
}

func logicalNotExistsError(k key.Key) error {
	if k.IsVertex() {
		return &coreerr.VertexError{Vertex: k.Source, Reason: coreerr.ReasonDoesNotExist}
	}
	return &coreerr.EdgeError{Source: k.Source, Destination: k.Destination, Reason: coreerr.ReasonDoesNotExist}
}

// Visible resolves k's visible payload for a reader at (readerTxID,
// readerStartTS), reading the live entry or walking its undo chain
// (spec.md §4.3 Visibility). exists is false if the key is not visible
// to the reader at all (never existed, or not yet committed as of its
// snapshot).
func Visible(e *Entry, readerTxID, readerStartTS uint64) (weight float64, exists bool) {
	res := undo.Resolve(e.Head, readerTxID, readerStartTS)
	switch {
	case res.ReadLive:
		return e.Weight, e.Exists
	case res.Visible:
		switch res.Record.Op {
		case undo.OpInsert:
			return 0, false
		case undo.OpRemove:
			w, _ := res.Record.Payload.(float64)
			return w, true
		case undo.OpUpdate:
			w, _ := res.Record.Payload.(float64)
			return w, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Scan walks entries with Key >= from in ascending order across
// segments (and, if needed, leaves), yielding (key, weight) pairs
// visible to (readerTxID, readerStartTS); fn returning false stops the
// walk early (spec.md §4.6 "scan").
func (m *Memstore) Scan(ctx context.Context, readerTxID, readerStartTS uint64, from key.Key, fn func(key.Key, float64) bool) error {
	leaf := m.index.Lookup(from)
	if leaf == nil {
		return nil
	}
	segIdx := 0
	for i, s := range leaf.Segments {
		if s.Contains(from) {
			segIdx = i
			break
		}
	}

	cur, err := OpenCursor(ctx, leaf, segIdx, from)
	if err != nil {
		return err
	}
	defer cur.Close()

	for {
		stop := false
		cur.Segment().Ascend(cur.Key(), func(e *Entry) bool {
			w, exists := Visible(e, readerTxID, readerStartTS)
			cur.Advance(e.Key)
			if !exists {
				return true
			}
			if !fn(e.Key, w) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return nil
		}

		nextIdx := cur.Leaf().SegmentIndex(cur.Segment()) + 1
		if nextIdx < len(cur.Leaf().Segments) {
			nextSeg := cur.Leaf().Segments[nextIdx]
			if err := cur.CrossSegment(ctx, cur.Leaf(), nextIdx, nextSeg.FenceLo()); err != nil {
				return err
			}
			continue
		}

		nextKey := key.Key{Source: cur.Leaf().FenceHi().Source + 1}
		nextLeaf := m.index.Lookup(nextKey)
		if nextLeaf == nil || nextLeaf == cur.Leaf() {
			return nil
		}
		if err := cur.CrossSegment(ctx, nextLeaf, 0, nextLeaf.Segments[0].FenceLo()); err != nil {
			return err
		}
	}
}
