// Package epoch implements epoch-based reclamation (spec.md §4.2): every
// registered thread publishes a monotonically nondecreasing epoch while
// it may still be dereferencing shared structures, and a sentinel while
// idle. The garbage collector (gc.go) only reclaims objects enqueued
// before the minimum epoch across all registered threads.
package epoch

import (
	"math"
	"sync"
	"sync/atomic"
)

// Idle is the sentinel epoch published by a thread that holds no
// references into the store (effectively +∞, excluded from MinEpoch).
const Idle = uint64(math.MaxUint64)

// Slot is a single registered thread's published epoch. It is safe for
// concurrent EnterEpoch/ExitEpoch from its owning thread and concurrent
// reads from the Manager's reclamation pass.
type Slot struct {
	epoch atomic.Uint64
}

// Epoch returns the slot's currently published epoch.
func (s *Slot) Epoch() uint64 { return s.epoch.Load() }

// Manager tracks the set of registered thread slots and the global
// logical clock used to stamp them.
type Manager struct {
	mu    sync.Mutex
	slots map[*Slot]struct{}
	clock atomic.Uint64
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{slots: make(map[*Slot]struct{})}
}

// Register creates and tracks a new Slot, initially idle.
func (m *Manager) Register() *Slot {
	s := &Slot{}
	s.epoch.Store(Idle)
	m.mu.Lock()
	m.slots[s] = struct{}{}
	m.mu.Unlock()
	return s
}

// Unregister stops tracking slot. Any deferred-free items still queued
// against it must be reassigned by the caller (runtime.ThreadContext
// does this by handing the queue to the GC's orphan queue) before
// calling Unregister, or they would never be visible to MinEpoch again.
func (m *Manager) Unregister(s *Slot) {
	m.mu.Lock()
	delete(m.slots, s)
	m.mu.Unlock()
}

// EnterEpoch stamps slot with a fresh, strictly increasing epoch value
// and returns it. Call once before a thread begins a traversal that may
// dereference reclaimable structures.
func (m *Manager) EnterEpoch(s *Slot) uint64 {
	e := m.clock.Add(1)
	s.epoch.Store(e)
	return e
}

// ExitEpoch publishes Idle, telling the collector this thread holds no
// references that require the epoch window to stay open.
func (m *Manager) ExitEpoch(s *Slot) {
	s.epoch.Store(Idle)
}

// Tick advances the global clock without stamping any slot; used to
// timestamp a mark() call made outside of an active epoch window (e.g.
// from a maintenance goroutine that never calls EnterEpoch).
func (m *Manager) Tick() uint64 {
	return m.clock.Add(1)
}

// MinEpoch returns the minimum published epoch across all registered,
// non-idle slots, or one past the current clock value if none are
// active, so that every item stamped so far is reclaimable.
func (m *Manager) MinEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	min := m.clock.Load() + 1
	for s := range m.slots {
		e := s.epoch.Load()
		if e != Idle && e < min {
			min = e
		}
	}
	return min
}
