package memstore

import (
	"context"

	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/latch"
)

// body is the storage layout a Segment delegates to: sparseBody or
// denseBody (spec.md §4 "Sparse file" / "Dense file").
type body interface {
	len() int
	get(k key.Key) (*Entry, bool)
	getOrCreate(k key.Key) *Entry
	remove(k key.Key)
	ascend(from key.Key, fn func(*Entry) bool)
	fillRatio(capacity int) float64
}

// Segment is the unit of latching and physical storage inside a Leaf
// (spec.md §3 item 7). Every mutation and scan of its body happens
// while the caller holds the segment's latch in the appropriate mode.
type Segment struct {
	Latch *latch.SegmentLatch

	fenceLo, fenceHi key.Key
	capacityEntries  int
	growFillRatio    float64
	shrinkFillRatio  float64

	dense bool
	body  body
}

// NewSegment returns an empty sparse-layout segment spanning
// [fenceLo, fenceHi], converting to dense once its fill ratio reaches
// growFillRatio and back to sparse once it falls to shrinkFillRatio
// (spec.md Open Question: "treat the threshold as a tunable
// configuration").
func NewSegment(fenceLo, fenceHi key.Key, capacityEntries int, growFillRatio, shrinkFillRatio float64) *Segment {
	return &Segment{
		Latch:           latch.NewSegmentLatch(),
		fenceLo:         fenceLo,
		fenceHi:         fenceHi,
		capacityEntries: capacityEntries,
		growFillRatio:   growFillRatio,
		shrinkFillRatio: shrinkFillRatio,
		body:            newSparseBody(),
	}
}

// FenceLo and FenceHi return the segment's key range (spec.md §4
// "Fence keys").
func (s *Segment) FenceLo() key.Key { return s.fenceLo }
func (s *Segment) FenceHi() key.Key { return s.fenceHi }

// Contains reports whether k falls within the segment's fences.
func (s *Segment) Contains(k key.Key) bool {
	return s.fenceLo.LessOrEqual(k) && k.LessOrEqual(s.fenceHi)
}

// SetFences updates the segment's range, used by the rebalancer when
// redistributing entries across segments (spec.md §4.7 Spread).
func (s *Segment) SetFences(lo, hi key.Key) {
	s.fenceLo, s.fenceHi = lo, hi
}

// Len returns the number of entries currently stored.
func (s *Segment) Len() int { return s.body.len() }

// IsDense reports the segment's current physical layout.
func (s *Segment) IsDense() bool { return s.dense }

// Get returns the entry for k if present. Caller must hold the
// segment's latch in any mode.
func (s *Segment) Get(k key.Key) (*Entry, bool) { return s.body.get(k) }

// Ascend iterates entries with Key >= from in ascending order. Caller
// must hold the segment's latch in any mode.
func (s *Segment) Ascend(from key.Key, fn func(*Entry) bool) { s.body.ascend(from, fn) }

// GetOrCreate returns (creating if absent) the entry for k and, if the
// resulting fill ratio crosses growFillRatio, converts the segment to
// dense layout. Caller must hold the write or rebalance latch.
func (s *Segment) GetOrCreate(k key.Key) *Entry {
	e := s.body.getOrCreate(k)
	s.maybeConvert()
	return e
}

// AtCapacity reports whether the segment's live entry count has
// reached its configured capacity, signaling a writer inserting a new
// key should back off and request a rebalance rather than grow the
// segment further (spec.md §4.5's capacity check, §4.7's Capacity →
// rebalance-and-retry path).
func (s *Segment) AtCapacity() bool {
	return s.body.len() >= s.capacityEntries
}

// Remove deletes k's entry outright (used only once its undo chain has
// been fully pruned and no live value needs to persist as a tombstone).
// Caller must hold the write or rebalance latch.
func (s *Segment) Remove(k key.Key) {
	s.body.remove(k)
	s.maybeConvert()
}

func (s *Segment) maybeConvert() {
	ratio := s.body.fillRatio(s.capacityEntries)
	switch {
	case !s.dense && ratio >= s.growFillRatio:
		s.convertToDense()
	case s.dense && ratio <= s.shrinkFillRatio:
		s.convertToSparse()
	}
}

func (s *Segment) convertToDense() {
	sb, ok := s.body.(*sparseBody)
	if !ok {
		return
	}
	dense := newDenseBody()
	for _, e := range sb.entries() {
		e := e
		dense.entries[e.Key] = &e
	}
	s.body = dense
	s.dense = true
}

func (s *Segment) convertToSparse() {
	db, ok := s.body.(*denseBody)
	if !ok {
		return
	}
	sparse := newSparseBody()
	for _, e := range db.entriesSorted() {
		dst := sparse.getOrCreate(e.Key)
		*dst = e
	}
	s.body = sparse
	s.dense = false
}

// AcquireWrite and ReleaseWrite take/release the segment's write latch,
// returning coreerr.ErrInvalid-wrapping errors from the underlying
// latch if the segment has been invalidated.
func (s *Segment) AcquireWrite(ctx context.Context) error  { return s.Latch.WriteLock(ctx) }
func (s *Segment) ReleaseWrite()                           { s.Latch.WriteUnlock() }
func (s *Segment) AcquireRead(ctx context.Context) error   { return s.Latch.ReadLock(ctx) }
func (s *Segment) ReleaseRead()                            { s.Latch.ReadUnlock() }
func (s *Segment) AcquireRebalance(ctx context.Context) error {
	return s.Latch.RebalanceLock(ctx)
}
func (s *Segment) ReleaseRebalance() { s.Latch.RebalanceUnlock() }
