// Package obs centralizes the engine's structured logging so that every
// component can accept a *zap.Logger and never has to nil-check it.
//
// Nothing on the segment read/write fast path logs; logging here is
// confined to component lifecycle (runtime workers, timer service, GC
// sweeps) and rebalance/maintenance decisions, per SPEC_FULL.md §A.
package obs

import "go.uber.org/zap"

// Or returns logger if non-nil, otherwise a no-op logger. Every
// constructor in this module that takes a *zap.Logger should route it
// through Or so callers may pass nil.
func Or(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
