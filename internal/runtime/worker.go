package runtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/teseograph/internal/epoch"
	"github.com/dreamware/teseograph/internal/obs"
	"github.com/dreamware/teseograph/internal/undo"
)

// ErrStopped is returned to a task submitted to (or still queued on) a
// worker that has already processed its Terminate task.
var ErrStopped = errors.New("runtime: worker stopped")

// Worker is one of the runtime's fixed set of task processors. Each
// worker owns its own epoch.GC instance and transaction-arena free
// list (spec.md §4.8: "a fixed set of worker threads, each with its own
// garbage collector instance and its own transaction-pool free-list"),
// so reclamation bookkeeping and arena reuse never contend across
// workers. Grounded on original_source/src/runtime/worker.cpp's event
// loop, adapted to Go's goroutine-per-worker model.
type Worker struct {
	id      int
	gc      *epoch.GC
	epochs  *epoch.Manager
	txnPool *txnPool
	logger  *zap.Logger

	rebalanceEnabled bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Task
	closed bool
}

func newWorker(id int, epochs *epoch.Manager, logger *zap.Logger) *Worker {
	logger = obs.Or(logger)
	w := &Worker{
		id:               id,
		gc:               epoch.NewGC(epochs, logger),
		epochs:           epochs,
		txnPool:          newTxnPool(),
		logger:           logger,
		rebalanceEnabled: true,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// ID returns the worker's index within its Pool.
func (w *Worker) ID() int { return w.id }

// GC returns the worker's own epoch garbage collector, so callers that
// retire objects on this worker's behalf can Mark against the right
// queue.
func (w *Worker) GC() *epoch.GC { return w.gc }

// AcquireArena pulls a reusable undo.Arena from the worker's
// transaction pool, allocating a fresh one if the free list is empty.
// Callers hand it to txn.NewWithArena when beginning a transaction.
func (w *Worker) AcquireArena() *undo.Arena { return w.txnPool.acquire() }

// ReleaseArena returns arena to the worker's transaction pool once its
// owning transaction has fully terminated and no reader can still be
// walking its records.
func (w *Worker) ReleaseArena(a *undo.Arena) { w.txnPool.release(a) }

// submit appends task to the worker's queue and wakes fetch if it is
// blocked waiting for work (spec.md §4.8: "submit appends and notifies
// one").
func (w *Worker) submit(task *Task) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		task.complete(ErrStopped)
		return
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	w.cond.Signal()
}

// fetch blocks while the queue is empty and returns the next task in
// FIFO order, or ok=false once the worker has been closed with nothing
// left queued (spec.md §4.8: "fetch blocks while empty").
func (w *Worker) fetch() (*Task, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) == 0 && !w.closed {
		w.cond.Wait()
	}
	if len(w.queue) == 0 {
		return nil, false
	}
	task := w.queue[0]
	w.queue = w.queue[1:]
	return task, true
}

// run is the worker's event loop: fetch a task, dispatch it, repeat,
// until a Terminate task arrives or the worker is otherwise closed.
func (w *Worker) run(ctx context.Context) error {
	for {
		task, ok := w.fetch()
		if !ok {
			return nil
		}
		if task.Kind == Terminate {
			task.complete(nil)
			w.close()
			return nil
		}
		err := task.run(ctx, w)
		task.complete(err)
		if err != nil {
			w.logger.Warn("task failed", zap.String("task", task.Kind.String()), zap.Error(err))
		}
	}
}

// close marks the worker closed and wakes any blocked fetch, draining
// every task still queued with ErrStopped so no caller blocks on a
// Done channel forever.
func (w *Worker) close() {
	w.mu.Lock()
	w.closed = true
	drained := w.queue
	w.queue = nil
	w.mu.Unlock()
	w.cond.Broadcast()
	for _, task := range drained {
		task.complete(ErrStopped)
	}
}
