// Package graph is the engine's public surface: a transactional,
// serializable-snapshot-isolation property graph built on the trie-indexed
// memstore, the undo-based transaction manager, and the worker pool that
// drives maintenance work in the background (spec.md §6 External
// Interfaces).
package graph

import (
	"go.uber.org/zap"

	"github.com/dreamware/teseograph/internal/config"
	"github.com/dreamware/teseograph/internal/epoch"
	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/dreamware/teseograph/internal/obs"
	"github.com/dreamware/teseograph/internal/props"
	"github.com/dreamware/teseograph/internal/rebalance"
	"github.com/dreamware/teseograph/internal/runtime"
	"github.com/dreamware/teseograph/internal/txn"
)

// arenaWorker is the index of the worker whose transaction-arena pool
// and epoch GC the graph uses for its single shared ThreadContext. Any
// worker would do; pinning to 0 keeps the two in lockstep without extra
// bookkeeping.
const arenaWorker = 0

// Graph owns every collaborator needed to begin and run transactions: the
// trie-indexed memstore, the timestamp clock, the property-count snapshot
// list, the epoch reclamation manager, the worker pool and its timer
// service, and the rebalancer. Per spec.md §9's "current global context"
// note, a Graph is constructed once and passed explicitly rather than
// reached through package-level state.
type Graph struct {
	cfg    config.Config
	clock  *txn.Clock
	folder *props.SnapshotList
	ms     *memstore.Memstore
	epochs *epoch.Manager
	pool   *runtime.Pool
	reb    *rebalance.Rebalancer
	merger *rebalance.Merger
	timer  *runtime.Timer
	tc     *runtime.ThreadContext
	logger *zap.Logger
}

// New builds a Graph from cfg, starts its worker pool and maintenance
// timer, and registers the shared thread context every transaction is
// tracked under. logger may be nil.
func New(cfg config.Config, logger *zap.Logger) *Graph {
	logger = obs.Or(logger)

	clock := txn.NewClock()
	folder := props.New(0, 0)
	shrinkRatio := cfg.DenseConversionFillRatio / 3
	root := memstore.NewLeaf(key.Min, key.Max, cfg.LeafNumSegments, cfg.SegmentCapacityBytes, cfg.DenseConversionFillRatio, shrinkRatio)
	ms := memstore.New(root)

	epochs := epoch.NewManager()
	pool := runtime.NewPool(cfg.NumWorkers, epochs, logger)

	tc := runtime.NewThreadContext(txn.DefaultListCapacity)
	active := func() []uint64 {
		seq := tc.Sequence()
		if seq == nil {
			return nil
		}
		return seq.StartTimestamps()
	}

	g := &Graph{
		cfg:    cfg,
		clock:  clock,
		folder: folder,
		ms:     ms,
		epochs: epochs,
		pool:   pool,
		tc:     tc,
		logger: logger,
	}

	pool.Start()
	done := make(chan error, 1)
	pool.Execute(&runtime.Task{Kind: runtime.RegisterThreadContext, ThreadContext: tc, Done: done}, arenaWorker)
	<-done

	g.reb = rebalance.New(ms, cfg, pool.Worker(arenaWorker).GC(), epochs, active, logger)
	g.merger = rebalance.NewMerger(g.reb, shrinkRatio, logger)
	g.timer = runtime.NewTimer(pool, cfg, g.merger, logger)
	g.timer.Track(tc)
	g.timer.Start()

	return g
}

// Close stops the maintenance timer and worker pool, unregistering the
// shared thread context first so its queued reclamation items are
// handed off rather than leaked.
func (g *Graph) Close() error {
	g.timer.Untrack(g.tc)
	g.timer.Stop()
	done := make(chan error, 1)
	g.pool.Execute(&runtime.Task{Kind: runtime.UnregisterThreadContext, ThreadContext: g.tc, Done: done}, arenaWorker)
	<-done
	return g.pool.Stop()
}

// VertexCount and EdgeCount report the graph's size as of now (spec.md
// §4.10), reading the property snapshot list at the current clock time.
func (g *Graph) VertexCount() int64 {
	v, _ := g.folder.Snapshot(g.clock.Peek())
	return v
}

func (g *Graph) EdgeCount() int64 {
	_, e := g.folder.Snapshot(g.clock.Peek())
	return e
}

// StartTransaction begins a new transaction, read-only or read-write,
// tracked under the graph's shared thread context (spec.md §6
// "start_transaction").
func (g *Graph) StartTransaction(readOnly bool) (*Transaction, error) {
	arena := g.pool.Worker(arenaWorker).AcquireArena()
	var folder txn.PropertyFolder
	if !readOnly {
		folder = g.folder
	}
	tx := txn.NewWithArena(g.clock, folder, readOnly, arena)
	if err := g.tc.List.Insert(tx); err != nil {
		g.pool.Worker(arenaWorker).ReleaseArena(arena)
		return nil, err
	}
	return &Transaction{g: g, tx: tx}, nil
}

// requestRebalance asks the pool to spread/split the leaf owning k,
// coalescing repeated requests through the rebalancer's own limiter;
// Pool.RequestRebalance already blocks until the rebalance completes
// (or is coalesced away), so the write path's retry needs no delay of
// its own.
func (g *Graph) requestRebalance(k key.Key) error {
	leaf := g.ms.LeafFor(k)
	if leaf == nil {
		return nil
	}
	return g.pool.RequestRebalance(g.reb, leaf)
}
