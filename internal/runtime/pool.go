// Package runtime implements the fixed worker pool and timer service
// that drive maintenance work on behalf of the rest of the engine
// (spec.md §4.8): GC reclamation passes, transaction-pool cleanup,
// thread-context registration and its periodic transaction-list
// refresh, and scheduled rebalance/merge requests.
package runtime

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/teseograph/internal/epoch"
	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/dreamware/teseograph/internal/obs"
	"github.com/dreamware/teseograph/internal/rebalance"
)

// Pool is the fixed set of background worker goroutines that execute
// Tasks. It supervises them with an errgroup.Group so a worker
// returning an error is observable from Stop, the way the engine's
// other background-service groups do (grounded on
// coordinator.HealthMonitor's goroutine lifecycle, generalized from one
// service to a fixed-size fleet).
type Pool struct {
	workers []*Worker
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPool builds a Pool of numWorkers workers (at least 1), all sharing
// epochs as their registration authority.
func NewPool(numWorkers int, epochs *epoch.Manager, logger *zap.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	logger = obs.Or(logger)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		rng:    rand.New(rand.NewSource(1)),
	}
	for i := 0; i < numWorkers; i++ {
		p.workers = append(p.workers, newWorker(i, epochs, logger))
	}
	return p
}

// NumWorkers reports the pool's fixed worker count.
func (p *Pool) NumWorkers() int { return len(p.workers) }

// Worker exposes the pool's i'th worker, for components (the timer
// service, tests) that need a specific worker rather than Execute's
// random pick.
func (p *Pool) Worker(i int) *Worker { return p.workers[i] }

// Start launches every worker's task loop under an errgroup.Group.
func (p *Pool) Start() {
	g, ctx := errgroup.WithContext(p.ctx)
	p.group = g
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.run(ctx) })
	}
}

// Stop asks every worker to drain and exit, then waits for all of
// them.
func (p *Pool) Stop() error {
	for _, w := range p.workers {
		w.submit(&Task{Kind: Terminate})
	}
	p.cancel()
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// Execute submits task to the worker identified by workerID, or to a
// pseudo-randomly chosen worker when workerID is negative (spec.md
// §4.8: "Runtime::execute(task, worker_id)", -1 meaning any worker).
func (p *Pool) Execute(task *Task, workerID int) {
	if workerID < 0 {
		workerID = p.randomWorker()
	} else {
		workerID = workerID % len(p.workers)
	}
	p.workers[workerID].submit(task)
}

func (p *Pool) randomWorker() int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Intn(len(p.workers))
}

// RequestRebalance asks the pool to spread (or, failing that, split)
// leaf, coalescing repeated requests for the same leaf via reb's own
// rate limiter (spec.md §4.7's scheduling delay). It blocks until the
// rebalance completes, or returns immediately with nil if the request
// was coalesced away — either way, the caller (typically a write that
// failed with coreerr.ErrCapacity) can simply call this and then retry.
func (p *Pool) RequestRebalance(reb *rebalance.Rebalancer, leaf *memstore.Leaf) error {
	if !reb.ShouldSchedule(leaf) {
		return nil
	}
	done := make(chan error, 1)
	p.Execute(&Task{Kind: Rebalance, Rebalancer: reb, Leaf: leaf, Done: done}, -1)
	return <-done
}
