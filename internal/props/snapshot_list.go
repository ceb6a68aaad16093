// Package props implements PropertySnapshotList: a commit-ordered log
// of (vertex, edge) count deltas used to answer point-in-time "how many
// vertices/edges existed as of timestamp t" queries without scanning
// the memstore (spec.md §4.10).
package props

import (
	"sort"
	"sync"
)

// delta is one committed transaction's contribution to the graph's
// vertex/edge counts.
type delta struct {
	commitTS    uint64
	deltaVertex int64
	deltaEdge   int64
}

// SnapshotList accumulates deltas in commit order and answers
// point-in-time count queries by summing every delta at or before the
// requested timestamp, starting from a persisted base (spec.md §4.10:
// "sums all deltas with commit_ts ≤ t starting from a persisted base").
type SnapshotList struct {
	mu sync.Mutex

	baseVertex int64
	baseEdge   int64

	deltas []delta // kept sorted by commitTS ascending
}

// New returns an empty SnapshotList seeded with the given base counts.
func New(baseVertex, baseEdge int64) *SnapshotList {
	return &SnapshotList{baseVertex: baseVertex, baseEdge: baseEdge}
}

// Fold records a newly-committed transaction's delta. Implements
// txn.PropertyFolder so *Transaction.Commit can call it directly.
func (l *SnapshotList) Fold(commitTS uint64, deltaVertex, deltaEdge int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deltas = append(l.deltas, delta{commitTS: commitTS, deltaVertex: deltaVertex, deltaEdge: deltaEdge})
}

// Snapshot returns the (vertex_count, edge_count) as of timestamp t:
// the base plus every delta committed at or before t.
func (l *SnapshotList) Snapshot(t uint64) (vertexCount, edgeCount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vertexCount, edgeCount = l.baseVertex, l.baseEdge
	for _, d := range l.deltas {
		if d.commitTS > t {
			break
		}
		vertexCount += d.deltaVertex
		edgeCount += d.deltaEdge
	}
	return vertexCount, edgeCount
}

// Prune folds every delta older than min(activeTxs) into the base,
// dropping them from the log (spec.md §4.10: "removes any snapshot
// whose commit is older than min(active_txs)"). activeTxs need not be
// sorted; an empty slice means no active reader needs any history, so
// the entire log folds into the base.
func (l *SnapshotList) Prune(activeTxs []uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var watermark uint64
	hasWatermark := false
	for _, ts := range activeTxs {
		if !hasWatermark || ts < watermark {
			watermark = ts
			hasWatermark = true
		}
	}

	cut := 0
	for cut < len(l.deltas) {
		d := l.deltas[cut]
		if hasWatermark && d.commitTS >= watermark {
			break
		}
		l.baseVertex += d.deltaVertex
		l.baseEdge += d.deltaEdge
		cut++
	}
	if cut == 0 {
		return
	}
	remaining := make([]delta, len(l.deltas)-cut)
	copy(remaining, l.deltas[cut:])
	l.deltas = remaining
}

// Acquire merges another thread context's SnapshotList into this one,
// used when a thread context unregisters and hands its accumulated
// deltas to a surviving list (spec.md §4.10 "acquire merges another
// list on thread-context unregister").
func (l *SnapshotList) Acquire(other *SnapshotList) {
	other.mu.Lock()
	baseVertex, baseEdge := other.baseVertex, other.baseEdge
	otherDeltas := make([]delta, len(other.deltas))
	copy(otherDeltas, other.deltas)
	other.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.baseVertex += baseVertex
	l.baseEdge += baseEdge
	l.deltas = append(l.deltas, otherDeltas...)
	sort.Slice(l.deltas, func(i, j int) bool { return l.deltas[i].commitTS < l.deltas[j].commitTS })
}
