package memstore

import (
	"sort"

	"github.com/dreamware/teseograph/internal/key"
)

// denseBody is the "dense file" segment layout (spec.md §4 "Dense
// file"): a hash map keyed by Key, used once insertion churn makes the
// sparse layout's shifting cost too high. Ascending iteration sorts the
// keys on demand, which is acceptable since dense segments are chosen
// specifically for write-heavy, scan-light workloads.
type denseBody struct {
	entries map[key.Key]*Entry
}

func newDenseBody() *denseBody {
	return &denseBody{entries: make(map[key.Key]*Entry)}
}

func (b *denseBody) len() int { return len(b.entries) }

func (b *denseBody) get(k key.Key) (*Entry, bool) {
	e, ok := b.entries[k]
	return e, ok
}

func (b *denseBody) getOrCreate(k key.Key) *Entry {
	if e, ok := b.entries[k]; ok {
		return e
	}
	e := &Entry{Key: k}
	b.entries[k] = e
	return e
}

func (b *denseBody) remove(k key.Key) {
	delete(b.entries, k)
}

func (b *denseBody) ascend(from key.Key, fn func(*Entry) bool) {
	keys := make([]key.Key, 0, len(b.entries))
	for k := range b.entries {
		if k.Less(from) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for _, k := range keys {
		if !fn(b.entries[k]) {
			return
		}
	}
}

func (b *denseBody) fillRatio(capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(len(b.entries)) / float64(capacity)
}

func (b *denseBody) entriesSorted() []Entry {
	out := make([]Entry, 0, len(b.entries))
	b.ascend(key.Min, func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}
