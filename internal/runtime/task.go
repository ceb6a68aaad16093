package runtime

import (
	"context"

	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/dreamware/teseograph/internal/rebalance"
)

// Kind tags the fixed set of work a worker can be asked to perform
// (spec.md §4.8: "Tasks are tagged enumerations"). MergerSweep is a
// supplement beyond spec.md's own list, grounded on the periodic
// leaf-merge sweep SPEC_FULL.md §C adds.
type Kind int

const (
	RegisterThreadContext Kind = iota
	UnregisterThreadContext
	GcRun
	GcStop
	GcTerminate
	TxnPoolPass
	BufferPoolPass
	EnableRebalance
	DisableRebalance
	Rebalance
	MergerSweep
	Terminate
)

func (k Kind) String() string {
	switch k {
	case RegisterThreadContext:
		return "register_thread_context"
	case UnregisterThreadContext:
		return "unregister_thread_context"
	case GcRun:
		return "gc_run"
	case GcStop:
		return "gc_stop"
	case GcTerminate:
		return "gc_terminate"
	case TxnPoolPass:
		return "txn_pool_pass"
	case BufferPoolPass:
		return "buffer_pool_pass"
	case EnableRebalance:
		return "enable_rebalance"
	case DisableRebalance:
		return "disable_rebalance"
	case Rebalance:
		return "rebalance"
	case MergerSweep:
		return "merger_sweep"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Task is a single unit of work submitted to a worker's queue. Which
// fields are meaningful depends on Kind: Rebalance needs Rebalancer and
// Leaf, RegisterThreadContext/UnregisterThreadContext need
// ThreadContext, MergerSweep needs Merger. Done, if non-nil, is closed
// (after being sent at most one error) once the task completes, letting
// a caller submit synchronously when it needs to.
type Task struct {
	Kind Kind

	ThreadContext *ThreadContext
	Rebalancer    *rebalance.Rebalancer
	Leaf          *memstore.Leaf
	Merger        *rebalance.Merger

	Done chan error
}

// complete sends err on Done and closes it; a nil Done is skipped, so a
// task with no waiter never blocks the worker. A non-nil Done needs room
// for one value, or the send blocks until a waiter receives it.
func (t *Task) complete(err error) {
	if t.Done == nil {
		return
	}
	t.Done <- err
	close(t.Done)
}

// run performs the task's actual work; it is the single dispatch point
// every worker calls from its loop (spec.md §4.8 "Runtime::execute
// routes").
func (t *Task) run(ctx context.Context, w *Worker) error {
	switch t.Kind {
	case RegisterThreadContext:
		if t.ThreadContext != nil {
			t.ThreadContext.register(w.epochs, w.gc)
		}
		return nil
	case UnregisterThreadContext:
		if t.ThreadContext != nil {
			t.ThreadContext.unregister()
		}
		return nil
	case GcRun:
		w.gc.ReclaimPass()
		return nil
	case GcStop, GcTerminate:
		// Nothing owned by the worker needs releasing beyond the queue
		// itself; Pool.Stop handles worker shutdown. These tags exist so
		// the timer service has a uniform vocabulary for lifecycle
		// control even though this implementation's GC has no separate
		// background thread of its own to stop.
		return nil
	case TxnPoolPass:
		w.txnPool.pass()
		return nil
	case BufferPoolPass:
		// No separate buffer pool is maintained beyond the undo arena
		// free-list TxnPoolPass already sweeps; kept as a distinct tag
		// for vocabulary parity with spec.md §4.8's task enum.
		return nil
	case EnableRebalance:
		w.rebalanceEnabled = true
		return nil
	case DisableRebalance:
		w.rebalanceEnabled = false
		return nil
	case Rebalance:
		if !w.rebalanceEnabled || t.Rebalancer == nil || t.Leaf == nil {
			return nil
		}
		return runRebalance(ctx, t.Rebalancer, t.Leaf)
	case MergerSweep:
		if t.Merger == nil {
			return nil
		}
		return t.Merger.Sweep(ctx)
	case Terminate:
		return nil
	default:
		return nil
	}
}

// runRebalance spreads leaf's live entries across its existing
// segments, falling back to a split when spreading can't make room
// (spec.md §4.7: "Split when the spread can't fit").
func runRebalance(ctx context.Context, reb *rebalance.Rebalancer, leaf *memstore.Leaf) error {
	ok, err := reb.Spread(ctx, leaf)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = reb.Split(ctx, leaf)
	return err
}
