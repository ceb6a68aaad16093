package runtime

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/teseograph/internal/config"
	"github.com/dreamware/teseograph/internal/obs"
	"github.com/dreamware/teseograph/internal/rebalance"
)

// Timer is the runtime's background maintenance service: one
// ticker-driven goroutine per periodic duty (GC passes, thread-context
// transaction-list refreshes, the leaf-merge sweep), each submitting
// work to the worker Pool as a Task rather than doing it inline.
// Grounded on coordinator.HealthMonitor's Start/Stop lifecycle (a
// ticker, an eager first pass, a select over the ticker and a
// cancellable context, a WaitGroup Stop waits on) generalized from one
// loop to several running independently.
type Timer struct {
	pool   *Pool
	cfg    config.Config
	merger *rebalance.Merger
	logger *zap.Logger

	mu       sync.Mutex
	contexts map[*ThreadContext]struct{}

	ctx    chan struct{} // closed by Stop
	once   sync.Once
	wg     sync.WaitGroup
}

// NewTimer builds a Timer driving pool's maintenance work at the
// intervals named in cfg. merger may be nil, which disables the
// leaf-merge sweep loop entirely.
func NewTimer(pool *Pool, cfg config.Config, merger *rebalance.Merger, logger *zap.Logger) *Timer {
	return &Timer{
		pool:     pool,
		cfg:      cfg,
		merger:   merger,
		logger:   obs.Or(logger),
		contexts: make(map[*ThreadContext]struct{}),
		ctx:      make(chan struct{}),
	}
}

// Track registers tc so the periodic transaction-list refresh loop
// includes it; call once a ThreadContext has been registered.
func (tm *Timer) Track(tc *ThreadContext) {
	tm.mu.Lock()
	tm.contexts[tc] = struct{}{}
	tm.mu.Unlock()
}

// Untrack stops refreshing tc; call once it is about to be
// unregistered.
func (tm *Timer) Untrack(tc *ThreadContext) {
	tm.mu.Lock()
	delete(tm.contexts, tc)
	tm.mu.Unlock()
}

// Start launches the maintenance loops, each in its own goroutine so a
// slow merger sweep never delays GC passes or transaction-list
// refreshes.
func (tm *Timer) Start() {
	tm.wg.Add(3)
	go tm.runGC()
	go tm.runTxnListRefresh()
	go tm.runMerger()
}

// Stop signals every loop to exit and waits for them to return.
func (tm *Timer) Stop() {
	tm.once.Do(func() { close(tm.ctx) })
	tm.wg.Wait()
}

func (tm *Timer) runGC() {
	defer tm.wg.Done()
	if tm.cfg.GCPassInterval <= 0 {
		return
	}
	tm.submitGCPass()
	ticker := time.NewTicker(tm.cfg.GCPassInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tm.submitGCPass()
		case <-tm.ctx:
			return
		}
	}
}

func (tm *Timer) submitGCPass() {
	for i := 0; i < tm.pool.NumWorkers(); i++ {
		tm.pool.Execute(&Task{Kind: GcRun}, i)
	}
}

func (tm *Timer) runTxnListRefresh() {
	defer tm.wg.Done()
	if tm.cfg.TxnListRefreshInterval <= 0 {
		return
	}
	tm.refreshAll()
	ticker := time.NewTicker(tm.cfg.TxnListRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tm.refreshAll()
		case <-tm.ctx:
			return
		}
	}
}

func (tm *Timer) refreshAll() {
	tm.mu.Lock()
	contexts := make([]*ThreadContext, 0, len(tm.contexts))
	for tc := range tm.contexts {
		contexts = append(contexts, tc)
	}
	tm.mu.Unlock()
	for _, tc := range contexts {
		tc.Refresh()
	}
}

func (tm *Timer) runMerger() {
	defer tm.wg.Done()
	if tm.merger == nil || tm.cfg.MergerInterval <= 0 {
		return
	}
	tm.submitMergerSweep()
	ticker := time.NewTicker(tm.cfg.MergerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tm.submitMergerSweep()
		case <-tm.ctx:
			return
		}
	}
}

func (tm *Timer) submitMergerSweep() {
	tm.pool.Execute(&Task{Kind: MergerSweep, Merger: tm.merger}, 0)
}
