// Package config holds the single configuration record described in
// spec.md §6. The engine is an embedded library, not a CLI: configuration
// is constructed in code via Default() plus functional options, the
// pattern embedded-storage libraries in this corpus favor over a
// flag/env parser (see SPEC_FULL.md §A).
package config

import (
	"runtime"
	"time"
)

// Config is the engine's single configuration record (spec.md §6).
type Config struct {
	// NumWorkers is the fixed size of the runtime worker pool.
	NumWorkers int

	// SegmentCapacityBytes bounds the number of entries a segment holds;
	// despite the name, it is applied as an entry count, not a byte size.
	SegmentCapacityBytes int

	// LeafNumSegments is the fixed number of segment slots per leaf.
	LeafNumSegments int

	// TxnListRefreshInterval is how often a thread context's cached
	// TransactionSequence is refreshed by the timer service.
	TxnListRefreshInterval time.Duration

	// GCPassInterval is how often the epoch garbage collector sweeps.
	GCPassInterval time.Duration

	// RebalanceDelay is how long a scheduled rebalance waits before
	// running, to let hot writers finish and to coalesce requests.
	RebalanceDelay time.Duration

	// MergerInterval is how often the periodic leaf-merge sweep runs.
	MergerInterval time.Duration

	// Directed selects directed (false: every insert/remove is
	// mirrored symmetrically) or undirected graph semantics.
	Directed bool

	// DenseConversionFillRatio is the fill fraction (of
	// SegmentCapacityBytes) above which a sparse segment converts to
	// dense, and below which (on shrink) a dense segment converts back
	// to sparse. Open Question #2 in spec.md §9: left tunable rather
	// than hardcoded.
	DenseConversionFillRatio float64
}

// Option mutates a Config during construction.
type Option func(*Config)

// Default returns the engine's default configuration.
func Default() Config {
	return Config{
		NumWorkers:               runtime.GOMAXPROCS(0),
		SegmentCapacityBytes:     64 * 1024,
		LeafNumSegments:          8,
		TxnListRefreshInterval:   50 * time.Millisecond,
		GCPassInterval:           20 * time.Millisecond,
		RebalanceDelay:           5 * time.Millisecond,
		MergerInterval:           200 * time.Millisecond,
		Directed:                 true,
		DenseConversionFillRatio: 0.75,
	}
}

// New builds a Config starting from Default() and applying opts in order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithNumWorkers(n int) Option {
	return func(c *Config) { c.NumWorkers = n }
}

func WithSegmentCapacityBytes(n int) Option {
	return func(c *Config) { c.SegmentCapacityBytes = n }
}

func WithLeafNumSegments(n int) Option {
	return func(c *Config) { c.LeafNumSegments = n }
}

func WithDirected(directed bool) Option {
	return func(c *Config) { c.Directed = directed }
}

func WithRebalanceDelay(d time.Duration) Option {
	return func(c *Config) { c.RebalanceDelay = d }
}

func WithGCPassInterval(d time.Duration) Option {
	return func(c *Config) { c.GCPassInterval = d }
}

func WithTxnListRefreshInterval(d time.Duration) Option {
	return func(c *Config) { c.TxnListRefreshInterval = d }
}

func WithMergerInterval(d time.Duration) Option {
	return func(c *Config) { c.MergerInterval = d }
}

func WithDenseConversionFillRatio(ratio float64) Option {
	return func(c *Config) { c.DenseConversionFillRatio = ratio }
}
