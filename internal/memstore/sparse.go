package memstore

import (
	"sort"

	"github.com/dreamware/teseograph/internal/key"
)

// sparseBody is the "sparse file" segment layout (spec.md §4 "Sparse
// file"): two facing ordered regions. lhs grows ascending from the low
// end of the segment's key range; rhs grows descending from the high
// end, so inserts near either extreme only ever shift the region they
// land in. The compactness invariant is: every key in lhs is less than
// every key in rhs, lhs is strictly ascending, and rhs is strictly
// descending — so the logical sequence lhs ++ reverse(rhs) is the
// segment's sorted, duplicate-free key order.
type sparseBody struct {
	lhs []Entry
	rhs []Entry // descending: rhs[0] holds the segment's greatest key
}

func newSparseBody() *sparseBody {
	return &sparseBody{}
}

func (b *sparseBody) len() int { return len(b.lhs) + len(b.rhs) }

// searchLHS returns the index of k in lhs, or the insertion point with
// found=false.
func (b *sparseBody) searchLHS(k key.Key) (idx int, found bool) {
	idx = sort.Search(len(b.lhs), func(i int) bool { return !b.lhs[i].Key.Less(k) })
	found = idx < len(b.lhs) && b.lhs[idx].Key.Compare(k) == 0
	return idx, found
}

// searchRHS returns the index of k in the descending rhs, or the
// insertion point with found=false.
func (b *sparseBody) searchRHS(k key.Key) (idx int, found bool) {
	idx = sort.Search(len(b.rhs), func(i int) bool { return !k.Less(b.rhs[i].Key) })
	found = idx < len(b.rhs) && b.rhs[idx].Key.Compare(k) == 0
	return idx, found
}

func (b *sparseBody) get(k key.Key) (*Entry, bool) {
	if i, ok := b.searchLHS(k); ok {
		return &b.lhs[i], true
	}
	if i, ok := b.searchRHS(k); ok {
		return &b.rhs[i], true
	}
	return nil, false
}

// getOrCreate returns the existing entry for k, or inserts a fresh
// (Exists: false) one. A key below lhs's greatest key goes to lhs and a
// key above rhs's smallest key goes to rhs, preserving the ordering
// invariant; a key falling between the two regions goes to whichever
// is shorter (spec.md §4.5 step 2: "route to LHS or RHS based on fill
// balance").
func (b *sparseBody) getOrCreate(k key.Key) *Entry {
	if e, ok := b.get(k); ok {
		return e
	}
	toLHS := len(b.lhs) <= len(b.rhs)
	if n := len(b.lhs); n > 0 && k.Less(b.lhs[n-1].Key) {
		toLHS = true
	} else if n := len(b.rhs); n > 0 && b.rhs[n-1].Key.Less(k) {
		toLHS = false
	}
	if toLHS {
		idx, _ := b.searchLHS(k)
		b.lhs = append(b.lhs, Entry{})
		copy(b.lhs[idx+1:], b.lhs[idx:])
		b.lhs[idx] = Entry{Key: k}
		return &b.lhs[idx]
	}
	idx, _ := b.searchRHS(k)
	b.rhs = append(b.rhs, Entry{})
	copy(b.rhs[idx+1:], b.rhs[idx:])
	b.rhs[idx] = Entry{Key: k}
	return &b.rhs[idx]
}

func (b *sparseBody) remove(k key.Key) {
	if idx, ok := b.searchLHS(k); ok {
		b.lhs = append(b.lhs[:idx], b.lhs[idx+1:]...)
		return
	}
	if idx, ok := b.searchRHS(k); ok {
		b.rhs = append(b.rhs[:idx], b.rhs[idx+1:]...)
	}
}

// ascend calls fn for every entry with Key >= from, in ascending key
// order, stopping early if fn returns false.
func (b *sparseBody) ascend(from key.Key, fn func(*Entry) bool) {
	start, _ := b.searchLHS(from)
	for i := start; i < len(b.lhs); i++ {
		if !fn(&b.lhs[i]) {
			return
		}
	}
	// rhs is stored descending; ascending order means walking it
	// back-to-front, skipping any entries below from.
	for i := len(b.rhs) - 1; i >= 0; i-- {
		if b.rhs[i].Key.Less(from) {
			continue
		}
		if !fn(&b.rhs[i]) {
			return
		}
	}
}

// fillRatio reports occupancy against capacity (entry count), used to
// decide sparse/dense conversion thresholds.
func (b *sparseBody) fillRatio(capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(b.len()) / float64(capacity)
}

// entries returns every stored entry in ascending key order, used by
// the rebalancer's scratchpad copy (spec.md §4.7 Spread).
func (b *sparseBody) entries() []Entry {
	out := make([]Entry, 0, b.len())
	b.ascend(key.Min, func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}
