package graph

import (
	"context"

	"github.com/dreamware/teseograph/internal/coreerr"
	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/dreamware/teseograph/internal/txn"
)

// Transaction is a single unit of work against a Graph: every method
// below maps directly onto spec.md §6's external interface.
type Transaction struct {
	g  *Graph
	tx *txn.Transaction
}

// write applies update, requesting a rebalance of the target leaf and
// retrying for as long as the segment it lands in reports capacity
// (spec.md §7: Capacity is internal — "triggers a rebalance + retry").
func (t *Transaction) write(ctx context.Context, update memstore.Update) error {
	for {
		err := t.g.ms.Write(ctx, t.tx, update)
		if !coreerr.Is(err, coreerr.ErrCapacity) {
			return err
		}
		if rerr := t.g.requestRebalance(update.Key); rerr != nil {
			return rerr
		}
	}
}

// InsertVertex adds v (spec.md §6 "insert_vertex").
func (t *Transaction) InsertVertex(ctx context.Context, v uint64) error {
	return t.write(ctx, memstore.Update{Kind: memstore.Insert, Key: key.Vertex(v)})
}

// RemoveVertex deletes v, returning the out-degree it had immediately
// before removal (spec.md §6 "remove_vertex(v) -> deg").
func (t *Transaction) RemoveVertex(ctx context.Context, v uint64) (int, error) {
	deg, err := t.GetDegree(ctx, v)
	if err != nil {
		return 0, err
	}
	if err := t.write(ctx, memstore.Update{Kind: memstore.Remove, Key: key.Vertex(v)}); err != nil {
		return 0, err
	}
	return deg, nil
}

// HasVertex reports whether v is visible to this transaction.
func (t *Transaction) HasVertex(ctx context.Context, v uint64) (bool, error) {
	_, exists, err := t.lookup(ctx, key.Vertex(v))
	return exists, err
}

// GetDegree counts v's visible outgoing edges.
func (t *Transaction) GetDegree(ctx context.Context, v uint64) (int, error) {
	count := 0
	err := t.ScanOut(ctx, v, func(uint64, float64) bool {
		count++
		return true
	})
	return count, err
}

// InsertEdge adds the directed edge (s, d) with the given weight,
// mirroring it as (d, s) when the graph is undirected (spec.md §6
// "insert_edge(s,d,w)").
func (t *Transaction) InsertEdge(ctx context.Context, s, d uint64, weight float64) error {
	if err := t.write(ctx, memstore.Update{Kind: memstore.Insert, Key: key.Edge(s, d), Weight: weight}); err != nil {
		return err
	}
	if !t.g.cfg.Directed {
		return t.write(ctx, memstore.Update{Kind: memstore.Insert, Key: key.Edge(d, s), Weight: weight})
	}
	return nil
}

// RemoveEdge removes the directed edge (s, d), mirroring the removal of
// (d, s) when the graph is undirected.
func (t *Transaction) RemoveEdge(ctx context.Context, s, d uint64) error {
	if err := t.write(ctx, memstore.Update{Kind: memstore.Remove, Key: key.Edge(s, d)}); err != nil {
		return err
	}
	if !t.g.cfg.Directed {
		return t.write(ctx, memstore.Update{Kind: memstore.Remove, Key: key.Edge(d, s)})
	}
	return nil
}

// HasEdge reports whether (s, d) is visible to this transaction.
func (t *Transaction) HasEdge(ctx context.Context, s, d uint64) (bool, error) {
	_, exists, err := t.lookup(ctx, key.Edge(s, d))
	return exists, err
}

// GetWeight returns (s, d)'s weight and whether the edge is visible.
func (t *Transaction) GetWeight(ctx context.Context, s, d uint64) (float64, bool, error) {
	return t.lookup(ctx, key.Edge(s, d))
}

// lookup scans from k and reports the weight/existence of exactly k,
// the only operation Write doesn't already give us a direct read path
// for (spec.md §4.6: reads go through the same segment traversal as
// scan, just stopping at the first match).
func (t *Transaction) lookup(ctx context.Context, k key.Key) (weight float64, exists bool, err error) {
	err = t.g.ms.Scan(ctx, t.tx.TxID(), t.tx.StartTS(), k, func(foundKey key.Key, w float64) bool {
		if foundKey == k {
			weight, exists = w, true
		}
		return false
	})
	return weight, exists, err
}

// ScanOut walks v's visible outgoing edges in ascending destination
// order, stopping early if fn returns false (spec.md §6 "scan_out").
func (t *Transaction) ScanOut(ctx context.Context, v uint64, fn func(dst uint64, weight float64) bool) error {
	from := key.Key{Source: v, Destination: key.NoVertex + 1}
	return t.g.ms.Scan(ctx, t.tx.TxID(), t.tx.StartTS(), from, func(k key.Key, w float64) bool {
		if k.Source != v {
			return false
		}
		return fn(k.Destination, w)
	})
}

// Iterator returns a resumable cursor-backed iterator over this
// transaction's snapshot (spec.md §6 "iterator()"). The transaction
// cannot be committed or rolled back while the returned Iterator is
// still open; call Close to release that guard.
func (t *Transaction) Iterator() *Iterator {
	t.tx.BeginIteration()
	return &Iterator{t: t}
}

// Commit finalizes the transaction's writes (spec.md §6 "commit()").
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.release()
	return nil
}

// Rollback undoes every write this transaction made (spec.md §6
// "rollback()").
func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return err
	}
	t.release()
	return nil
}

// release drops the transaction from the shared thread context's
// active list and decides what becomes of its arena. A committed
// transaction's records are exactly the history future readers and the
// rebalancer will walk, so its arena is never reused until the
// rebalancer prunes that history away on its own schedule — this
// method only ever recycles an arena that allocated nothing, or one a
// rollback already fully unlinked via Reinstall. Even the rollback case
// goes through the epoch GC rather than straight to the pool: an
// optimistic reader may still be mid-walk against a version it captured
// moments before the rollback (the same reasoning ThreadContext.Refresh
// and rebalance.epochReclaim use for retiring other shared structures).
func (t *Transaction) release() {
	t.g.tc.List.Remove(t.tx)
	arena := t.tx.Arena()
	switch {
	case arena.Len() == 0:
		t.g.pool.Worker(arenaWorker).ReleaseArena(arena)
	case t.tx.State() == txn.Aborted:
		stamp := t.g.epochs.Tick()
		t.g.pool.Worker(arenaWorker).GC().Mark(nil, stamp, func() {
			t.g.pool.Worker(arenaWorker).ReleaseArena(arena)
		})
	}
}
