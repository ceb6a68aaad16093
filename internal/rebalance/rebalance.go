// Package rebalance implements the spread/split/merge operators that
// keep leaves and segments within their fill bounds (spec.md §4.7), plus
// the periodic merger sweep that detects underfilled leaves on its own
// (SPEC_FULL.md §C, grounded on the teacher's original merger_service).
package rebalance

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dreamware/teseograph/internal/config"
	"github.com/dreamware/teseograph/internal/epoch"
	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/dreamware/teseograph/internal/obs"
	"github.com/dreamware/teseograph/internal/undo"
)

// ActiveSnapshot returns the start timestamps of every currently open
// transaction, the input undo.Prune needs to decide what history a
// rebalance may safely discard.
type ActiveSnapshot func() []uint64

// Rebalancer owns the three structural operators (spread, split, merge)
// over a Memstore's trie, plus the coalescing guard that keeps a hot
// leaf from being rescheduled on every single write that crosses its
// fill threshold (spec.md §4.7 "coalesce requests").
type Rebalancer struct {
	ms     *memstore.Memstore
	cfg    config.Config
	gc     *epoch.GC
	epochs *epoch.Manager
	active ActiveSnapshot
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[*memstore.Leaf]*rate.Limiter
}

// New returns a Rebalancer bound to ms, using active to snapshot open
// transactions before pruning a segment's undo chains.
func New(ms *memstore.Memstore, cfg config.Config, gc *epoch.GC, epochs *epoch.Manager, active ActiveSnapshot, logger *zap.Logger) *Rebalancer {
	return &Rebalancer{
		ms:       ms,
		cfg:      cfg,
		gc:       gc,
		epochs:   epochs,
		active:   active,
		logger:   obs.Or(logger),
		limiters: make(map[*memstore.Leaf]*rate.Limiter),
	}
}

// ShouldSchedule reports whether a rebalance request for leaf should be
// enqueued now, coalescing repeated requests for the same hot leaf into
// at most one every RebalanceDelay (spec.md §4.7).
func (r *Rebalancer) ShouldSchedule(leaf *memstore.Leaf) bool {
	return r.limiterFor(leaf).Allow()
}

func (r *Rebalancer) limiterFor(leaf *memstore.Leaf) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[leaf]
	if !ok {
		every := rate.Every(r.cfg.RebalanceDelay)
		if r.cfg.RebalanceDelay <= 0 {
			every = rate.Inf
		}
		lim = rate.NewLimiter(every, 1)
		r.limiters[leaf] = lim
	}
	return lim
}

func (r *Rebalancer) forgetLimiter(leaf *memstore.Leaf) {
	r.mu.Lock()
	delete(r.limiters, leaf)
	r.mu.Unlock()
}

// liveRecord is one surviving (key, exists, weight, head) tuple lifted
// out of a segment's body during a rebalance scratchpad copy.
type liveRecord struct {
	key    key.Key
	exists bool
	weight float64
	head   *undo.Record
}

// collectLive acquires seg's rebalance latch, prunes every entry's undo
// chain against the active snapshot, and copies out the surviving
// entries (including tombstoned-but-still-visible-to-a-reader ones).
// The caller must already hold seg's rebalance latch is NOT required —
// collectLive acquires and releases it itself, leaving the segment
// structurally untouched: callers that need to redistribute across
// several segments at once take the ordered locks themselves and call
// collectLiveLocked instead.
func (r *Rebalancer) collectLive(ctx context.Context, seg *memstore.Segment) ([]liveRecord, error) {
	if err := seg.AcquireRebalance(ctx); err != nil {
		return nil, err
	}
	defer seg.ReleaseRebalance()
	return r.collectLiveLocked(seg), nil
}

// collectLiveLocked is collectLive's body, for callers that already
// hold seg's rebalance latch (spread/merge acquiring several segments
// in fixed order up front).
func (r *Rebalancer) collectLiveLocked(seg *memstore.Segment) []liveRecord {
	active := r.active()
	var out []liveRecord
	seg.Ascend(seg.FenceLo(), func(e *memstore.Entry) bool {
		newHead, _ := undo.Prune(e.Head, active)
		e.Head = newHead
		if e.Exists || newHead != nil {
			out = append(out, liveRecord{key: e.Key, exists: e.Exists, weight: e.Weight, head: newHead})
		}
		return true
	})
	return out
}

// acquireAscending takes the rebalance latch of every segment in segs,
// in slice order, releasing everything acquired so far if any
// acquisition fails (spec.md §4.7 "fixed left-to-right order to prevent
// deadlock").
func acquireAscending(ctx context.Context, segs []*memstore.Segment) error {
	for i, s := range segs {
		if err := s.AcquireRebalance(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				segs[j].ReleaseRebalance()
			}
			return err
		}
	}
	return nil
}

func releaseAll(segs []*memstore.Segment) {
	for _, s := range segs {
		s.ReleaseRebalance()
	}
}

// Spread redistributes leaf's live entries evenly across its existing
// segments, pruning undo history and converting sparse/dense layout as
// each segment's new fill ratio dictates (spec.md §4.7 Spread). It
// returns false if the leaf's segments are already full to capacity
// even after an even split, signaling the caller to Split instead.
func (r *Rebalancer) Spread(ctx context.Context, leaf *memstore.Leaf) (bool, error) {
	segs := leaf.Segments
	if err := acquireAscending(ctx, segs); err != nil {
		return false, err
	}
	defer releaseAll(segs)

	var all []liveRecord
	for _, s := range segs {
		all = append(all, r.collectLiveLocked(s)...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].key.Less(all[j].key) })

	n := len(segs)
	perSegment := (len(all) + n - 1) / n
	if perSegment >= r.cfg.SegmentCapacityBytes {
		return false, nil
	}

	bounds := rebuildFences(leaf.FenceLo(), leaf.FenceHi(), all, n)
	idx := 0
	for i, s := range segs {
		lo, hi := bounds[i], bounds[i+1]
		s.SetFences(lo, hi)
		rebuildSegment(s, all, &idx, n-i, len(all))
	}

	r.logger.Debug("spread complete",
		zap.Int("segments", n), zap.Int("entries", len(all)))
	return true, nil
}

// rebuildSegment replaces seg's body with the next share of records
// from all (idx advances as records are consumed), splitting the
// remaining count as evenly as possible across the remaining
// segmentsLeft segments.
func rebuildSegment(seg *memstore.Segment, all []liveRecord, idx *int, segmentsLeft, total int) {
	remaining := total - *idx
	share := remaining / segmentsLeft
	if remaining%segmentsLeft != 0 {
		share++
	}
	var stale []key.Key
	seg.Ascend(key.Min, func(e *memstore.Entry) bool {
		stale = append(stale, e.Key)
		return true
	})
	for _, k := range stale {
		seg.Remove(k)
	}
	end := *idx + share
	if end > total {
		end = total
	}
	for *idx < end {
		rec := all[*idx]
		e := seg.GetOrCreate(rec.key)
		e.Exists = rec.exists
		e.Weight = rec.weight
		e.Head = rec.head
		*idx++
	}
}

// rebuildFences computes n+1 boundary keys spanning [lo, hi] so that
// segment i owns entries[i*share:(i+1)*share], choosing boundaries
// exactly at the surviving keys themselves rather than an arbitrary
// midpoint, except for the outermost fences which stay pinned to the
// leaf's own range.
func rebuildFences(lo, hi key.Key, all []liveRecord, n int) []key.Key {
	bounds := make([]key.Key, n+1)
	bounds[0] = lo
	bounds[n] = hi
	if len(all) == 0 {
		for i := 1; i < n; i++ {
			bounds[i] = lo
		}
		return bounds
	}
	per := (len(all) + n - 1) / n
	for i := 1; i < n; i++ {
		at := i * per
		if at >= len(all) {
			bounds[i] = hi
			continue
		}
		bounds[i] = all[at].key
	}
	return bounds
}

// Split allocates a new leaf and moves the upper half of src's segments
// into it, publishing the new leaf in the trie and invalidating src
// itself so no reader can dereference stale segment identity (spec.md
// §4.7 Split).
func (r *Rebalancer) Split(ctx context.Context, src *memstore.Leaf) (*memstore.Leaf, error) {
	segs := src.Segments
	if len(segs) < 2 {
		return nil, nil
	}
	if err := acquireAscending(ctx, segs); err != nil {
		return nil, err
	}
	defer releaseAll(segs)

	mid := len(segs) / 2
	moved := segs[mid:]

	// The moved segments keep their identity (same *Segment, same latch):
	// they are only re-owned by a new Leaf, so their latches stay exactly
	// as they are. Only src's own Leaf identity is retired — a cursor
	// resuming against it checks Leaf.IsInvalid() before ever touching a
	// segment, so invalidating individual segment latches here would just
	// permanently (there is no "un-invalidate") wedge segments that are
	// still perfectly live under the new leaves.
	newLeaf := &memstore.Leaf{Segments: append([]*memstore.Segment(nil), moved...)}
	keptLeaf := &memstore.Leaf{Segments: append([]*memstore.Segment(nil), segs[:mid]...)}

	// The Index keys leaves solely by their high fence (index.go). keptLeaf
	// occupies a fresh key below src's old range, a pure add; newLeaf keeps
	// src's exact high fence, so publishing it replaces src's entry in one
	// ReplaceOrInsert — there is no separate stale src entry left to Remove.
	r.ms.Index().Insert(keptLeaf)
	r.ms.Index().Insert(newLeaf)
	src.Invalidate()

	r.epochReclaim(src)
	r.forgetLimiter(src)

	r.logger.Debug("split complete",
		zap.Int("kept_segments", mid), zap.Int("moved_segments", len(moved)))
	return newLeaf, nil
}

// Merge scans two adjacent leaves, prunes and redistributes their live
// entries into a single new leaf sized to whichever of the two had more
// segments, publishes it, and invalidates both originals (spec.md §4.7
// Merge).
func (r *Rebalancer) Merge(ctx context.Context, a, b *memstore.Leaf) (*memstore.Leaf, error) {
	aSegs, bSegs := a.Segments, b.Segments
	if err := acquireAscending(ctx, aSegs); err != nil {
		return nil, err
	}
	defer releaseAll(aSegs)
	if err := acquireAscending(ctx, bSegs); err != nil {
		return nil, err
	}
	defer releaseAll(bSegs)

	var all []liveRecord
	for _, s := range aSegs {
		all = append(all, r.collectLiveLocked(s)...)
	}
	for _, s := range bSegs {
		all = append(all, r.collectLiveLocked(s)...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].key.Less(all[j].key) })

	n := len(aSegs)
	if len(bSegs) > n {
		n = len(bSegs)
	}
	lo, hi := a.FenceLo(), b.FenceHi()
	merged := memstore.NewLeaf(lo, hi, n, r.cfg.SegmentCapacityBytes, r.cfg.DenseConversionFillRatio, r.cfg.DenseConversionFillRatio/3)

	idx := 0
	for i, s := range merged.Segments {
		rebuildSegment(s, all, &idx, n-i, len(all))
	}

	a.Invalidate()
	b.Invalidate()
	for _, s := range aSegs {
		s.Latch.MarkInvalid()
	}
	for _, s := range bSegs {
		s.Latch.MarkInvalid()
	}
	// merged carries b's exact high fence, so publishing it replaces b's
	// Index entry directly; a's entry sits at a distinct (lower) key and
	// needs an explicit Remove.
	r.ms.Index().Remove(a.FenceHi())
	r.ms.Index().Insert(merged)

	r.epochReclaim(a)
	r.epochReclaim(b)
	r.forgetLimiter(a)
	r.forgetLimiter(b)

	r.logger.Debug("merge complete",
		zap.Int("merged_segments", n), zap.Int("entries", len(all)))
	return merged, nil
}

// epochReclaim marks leaf for epoch-based reclamation: it is only
// actually dropped once no registered thread's epoch can still predate
// the moment it was invalidated, so an optimistic reader that looked it
// up moments before can finish validating against it safely.
func (r *Rebalancer) epochReclaim(leaf *memstore.Leaf) {
	if r.gc == nil || r.epochs == nil {
		return
	}
	stamp := r.epochs.Tick()
	r.gc.Mark(nil, stamp, func() {
		r.logger.Debug("leaf reclaimed", zap.Uint64("epoch", stamp))
	})
}

// UnderfilledNeighbors scans the index for a pair of fence-adjacent
// leaves both below mergeFillRatio, returning the first such pair it
// finds (SPEC_FULL.md §C). It returns ok=false if none are found.
func (r *Rebalancer) UnderfilledNeighbors(mergeFillRatio float64) (a, b *memstore.Leaf, ok bool) {
	var prev *memstore.Leaf
	r.ms.Index().AscendLeaves(key.Min, func(leaf *memstore.Leaf) bool {
		if leaf.IsInvalid() {
			return true
		}
		if prev != nil && r.leafFillRatio(prev) < mergeFillRatio && r.leafFillRatio(leaf) < mergeFillRatio {
			a, b, ok = prev, leaf, true
			return false
		}
		prev = leaf
		return true
	})
	return a, b, ok
}

// leafFillRatio averages each segment's live-entry count against the
// configured per-segment capacity, the same capacity NewLeaf sizes
// every segment to.
func (r *Rebalancer) leafFillRatio(leaf *memstore.Leaf) float64 {
	if len(leaf.Segments) == 0 || r.cfg.SegmentCapacityBytes == 0 {
		return 0
	}
	total := 0
	for _, s := range leaf.Segments {
		total += s.Len()
	}
	return float64(total) / float64(len(leaf.Segments)*r.cfg.SegmentCapacityBytes)
}

// Merger runs the periodic leaf-merge sweep (SPEC_FULL.md §C, grounded
// on the original's merger_service): on every tick it looks for one
// pair of adjacent underfilled leaves and merges them, stopping once a
// sweep finds nothing left to do.
type Merger struct {
	reb            *Rebalancer
	mergeFillRatio float64
	logger         *zap.Logger
}

// NewMerger returns a Merger driving reb, treating a leaf as a merge
// candidate once its average segment fill drops below mergeFillRatio.
func NewMerger(reb *Rebalancer, mergeFillRatio float64, logger *zap.Logger) *Merger {
	return &Merger{reb: reb, mergeFillRatio: mergeFillRatio, logger: obs.Or(logger)}
}

// Sweep performs one merge pass, merging at most one pair of adjacent
// underfilled leaves; callers (the runtime timer) call it repeatedly on
// MergerInterval.
func (m *Merger) Sweep(ctx context.Context) error {
	a, b, ok := m.reb.UnderfilledNeighbors(m.mergeFillRatio)
	if !ok {
		return nil
	}
	merged, err := m.reb.Merge(ctx, a, b)
	if err != nil {
		return err
	}
	if merged != nil {
		m.logger.Debug("merger sweep merged adjacent leaves",
			zap.String("range", merged.FenceLo().String()+".."+merged.FenceHi().String()))
	}
	return nil
}
