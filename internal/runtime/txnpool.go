package runtime

import (
	"sync"

	"github.com/dreamware/teseograph/internal/undo"
)

// txnPool is a worker-local free list of undo.Arenas, grounded on the
// teacher's per-worker transaction memory pool
// (original_source/src/runtime/worker.cpp dispatches TXN_MEMPOOL_PASS
// to transaction_pool()->cleanup()): reusing an already-allocated
// Arena across transactions avoids slab churn on the hot begin/commit
// path. Transactions acquire and release arenas from their own
// goroutines while the worker runs pass, so every access goes through
// mu.
type txnPool struct {
	mu      sync.Mutex
	free    []*undo.Arena
	maxFree int
}

func newTxnPool() *txnPool {
	return &txnPool{maxFree: 64}
}

// acquire returns a reusable, already-Reset Arena from the free list,
// or a freshly allocated one if the pool is empty.
func (p *txnPool) acquire() *undo.Arena {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return undo.NewArena(64)
	}
	a := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return a
}

// release returns arena to the free list for reuse by a future
// transaction. The caller must guarantee the arena's owning transaction
// has fully terminated and that no reader can still be walking any of
// its records before calling this (a Reset here would otherwise erase
// history something still needs).
func (p *txnPool) release(a *undo.Arena) {
	a.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.maxFree {
		return
	}
	p.free = append(p.free, a)
}

// pass trims the free list back to half its target capacity, dropping
// the least-recently-released arenas first (TxnPoolPass, spec.md
// §4.8).
func (p *txnPool) pass() {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.maxFree / 2
	if len(p.free) > target {
		p.free = p.free[len(p.free)-target:]
	}
}
