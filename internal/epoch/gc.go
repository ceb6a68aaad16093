package epoch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/teseograph/internal/obs"
)

// item is a single deferred-free entry: the deleter that reclaims it,
// stamped with the epoch at which it was retired.
type item struct {
	enqueueEpoch uint64
	deleter      func()
}

// queue is a per-owner FIFO of retired items, drained from the front
// since items are always appended in nondecreasing enqueue-epoch order.
type queue struct {
	mu    sync.Mutex
	items []item
}

func (q *queue) push(it item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
}

// drain removes and runs the deleter of every item whose enqueueEpoch is
// strictly less than min, returning the count reclaimed.
func (q *queue) drain(min uint64) int {
	q.mu.Lock()
	i := 0
	for i < len(q.items) && q.items[i].enqueueEpoch < min {
		i++
	}
	reclaimed := q.items[:i]
	q.items = q.items[i:]
	q.mu.Unlock()

	for _, it := range reclaimed {
		it.deleter()
	}
	return len(reclaimed)
}

// GC is the epoch-based garbage collector: it owns one queue per
// registered thread context plus a shared "orphan" queue that absorbs
// the queues of threads that unregister before their items are
// reclaimable (spec.md §4.2).
type GC struct {
	manager *Manager
	logger  *zap.Logger

	mu     sync.Mutex
	queues map[*Slot]*queue
	orphan *queue
}

// NewGC builds a GC bound to manager, using logger for reclaim-pass
// summaries (nil is replaced with a no-op logger).
func NewGC(manager *Manager, logger *zap.Logger) *GC {
	return &GC{
		manager: manager,
		logger:  obs.Or(logger),
		queues:  make(map[*Slot]*queue),
		orphan:  &queue{},
	}
}

func (g *GC) queueFor(s *Slot) *queue {
	g.mu.Lock()
	defer g.mu.Unlock()
	q, ok := g.queues[s]
	if !ok {
		q = &queue{}
		g.queues[s] = q
	}
	return q
}

// Mark enqueues deleter to run once no registered thread's epoch can
// still be at or before enqueueEpoch. If slot is nil (the caller has no
// thread context) the item is appended straight to the GC's own orphan
// queue. deleter must be idempotent: it is invoked exactly once.
func (g *GC) Mark(slot *Slot, enqueueEpoch uint64, deleter func()) {
	it := item{enqueueEpoch: enqueueEpoch, deleter: deleter}
	if slot == nil {
		g.orphan.push(it)
		return
	}
	g.queueFor(slot).push(it)
}

// Unregister hands slot's queue (if any) to the orphan queue and drops
// the per-slot tracking entry; it does not touch the epoch Manager —
// callers unregister there separately once they are done publishing.
func (g *GC) Unregister(s *Slot) {
	g.mu.Lock()
	q, ok := g.queues[s]
	delete(g.queues, s)
	g.mu.Unlock()
	if !ok {
		return
	}
	q.mu.Lock()
	items := q.items
	q.mu.Unlock()

	g.orphan.mu.Lock()
	g.orphan.items = append(g.orphan.items, items...)
	g.orphan.mu.Unlock()
}

// ReclaimPass computes the current minimum epoch across all registered
// threads and drains every queue of items retired before it, returning
// the total number of objects reclaimed.
func (g *GC) ReclaimPass() int {
	min := g.manager.MinEpoch()

	g.mu.Lock()
	queues := make([]*queue, 0, len(g.queues)+1)
	for _, q := range g.queues {
		queues = append(queues, q)
	}
	queues = append(queues, g.orphan)
	g.mu.Unlock()

	total := 0
	for _, q := range queues {
		total += q.drain(min)
	}
	if total > 0 {
		g.logger.Debug("epoch gc reclaim pass", zap.Int("reclaimed", total), zap.Uint64("min_epoch", min))
	}
	return total
}
