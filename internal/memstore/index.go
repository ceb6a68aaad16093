package memstore

import (
	"sync"

	"github.com/google/btree"

	"github.com/dreamware/teseograph/internal/key"
)

// Index is the trie collaborator the memstore routes through: a
// point-lookup by key returning a leaf reference, plus range walks
// (spec.md §2 "the ART-based trie used as the index... we assume the
// collaborator exposes a point-lookup returning a leaf reference and
// range operations"). It is backed by google/btree's classic ordered
// BTree, keyed by each leaf's high fence, which plays the role the ART
// trie's radix structure would in the original: a point lookup for key
// k finds the first leaf whose fence_hi >= k.
type Index struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// leafItem adapts a *Leaf to btree.Item, ordered by its high fence.
type leafItem struct {
	fenceHi key.Key
	leaf    *Leaf
}

func (it *leafItem) Less(than btree.Item) bool {
	return it.fenceHi.Less(than.(*leafItem).fenceHi)
}

// NewIndex returns an index seeded with a single leaf spanning the
// entire key space.
func NewIndex(root *Leaf) *Index {
	idx := &Index{tree: btree.New(32)}
	idx.tree.ReplaceOrInsert(&leafItem{fenceHi: root.FenceHi(), leaf: root})
	return idx
}

// Lookup returns the leaf whose fences contain k, restarting callers
// should retry against if the returned leaf turns out invalid (spec.md
// §4 "optimistic readers detect this through the latch state and
// restart from the trie").
func (idx *Index) Lookup(k key.Key) *Leaf {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var found *Leaf
	idx.tree.AscendGreaterOrEqual(&leafItem{fenceHi: k}, func(item btree.Item) bool {
		li := item.(*leafItem)
		if li.leaf.FenceLo().LessOrEqual(k) {
			found = li.leaf
		}
		return false
	})
	return found
}

// Insert publishes a new leaf into the index, used after a split
// (spec.md §4.7 Split).
func (idx *Index) Insert(l *Leaf) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.ReplaceOrInsert(&leafItem{fenceHi: l.FenceHi(), leaf: l})
}

// Remove drops a leaf from the index by its (old) high fence, used
// after a leaf is invalidated by a split or merge (spec.md §4.7).
func (idx *Index) Remove(fenceHi key.Key) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.Delete(&leafItem{fenceHi: fenceHi})
}

// AscendLeaves walks leaves in ascending fence order starting from the
// one containing from, invoking fn until it returns false.
func (idx *Index) AscendLeaves(from key.Key, fn func(*Leaf) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	idx.tree.AscendGreaterOrEqual(&leafItem{fenceHi: from}, func(item btree.Item) bool {
		return fn(item.(*leafItem).leaf)
	})
}

// Len returns the number of leaves currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}
