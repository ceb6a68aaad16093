package memstore

import (
	"sync/atomic"

	"github.com/dreamware/teseograph/internal/key"
)

// Leaf is a fixed-capacity array of segments with fence keys, indexed
// by the trie (spec.md §3 item 8). A leaf's identity is immutable once
// inserted; all mutation happens through its segments. Split/merge
// invalidate a leaf rather than mutating it in place so optimistic
// readers holding a reference can detect the change (spec.md §4
// "Leaf").
type Leaf struct {
	Segments []*Segment

	invalid atomic.Bool
}

// NewLeaf builds a leaf spanning [fenceLo, fenceHi] with numSegments
// equally-sized empty sparse segments.
func NewLeaf(fenceLo, fenceHi key.Key, numSegments, segmentCapacityEntries int, growFillRatio, shrinkFillRatio float64) *Leaf {
	segments := make([]*Segment, numSegments)
	bounds := splitRange(fenceLo, fenceHi, numSegments)
	for i := 0; i < numSegments; i++ {
		segments[i] = NewSegment(bounds[i], bounds[i+1], segmentCapacityEntries, growFillRatio, shrinkFillRatio)
	}
	return &Leaf{Segments: segments}
}

// FenceLo and FenceHi return the leaf's overall key range: the min/max
// of its segments (spec.md §4 "leaf fences equal the min/max of their
// segments").
func (l *Leaf) FenceLo() key.Key { return l.Segments[0].FenceLo() }
func (l *Leaf) FenceHi() key.Key { return l.Segments[len(l.Segments)-1].FenceHi() }

// Invalidate marks the leaf as no longer current; optimistic readers
// and waiters detect this and restart from the trie (spec.md §4.7).
func (l *Leaf) Invalidate() { l.invalid.Store(true) }

// IsInvalid reports whether the leaf has been superseded by a split or
// merge.
func (l *Leaf) IsInvalid() bool { return l.invalid.Load() }

// SegmentFor returns the segment whose fences contain k, or nil if k
// falls outside every segment (should not happen for a correctly
// constructed leaf whose fences span the full key range it owns).
func (l *Leaf) SegmentFor(k key.Key) *Segment {
	for _, s := range l.Segments {
		if s.Contains(k) {
			return s
		}
	}
	return nil
}

// SegmentIndex returns the index of seg within the leaf, or -1.
func (l *Leaf) SegmentIndex(seg *Segment) int {
	for i, s := range l.Segments {
		if s == seg {
			return i
		}
	}
	return -1
}

// splitRange divides [lo, hi] into n contiguous, touching subranges
// over the Source dimension (spec.md §4 "adjacent segments have
// touching fences").
func splitRange(lo, hi key.Key, n int) []key.Key {
	bounds := make([]key.Key, n+1)
	bounds[0] = lo
	bounds[n] = hi
	if n == 1 {
		return bounds
	}
	span := hi.Source - lo.Source
	step := span / uint64(n)
	if step == 0 {
		step = 1
	}
	for i := 1; i < n; i++ {
		s := lo.Source + step*uint64(i)
		if s >= hi.Source {
			s = hi.Source
		}
		bounds[i] = key.Key{Source: s, Destination: 0}
	}
	return bounds
}
