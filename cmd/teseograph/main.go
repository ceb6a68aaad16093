// Command teseograph is a small demo/benchmark binary: it builds a
// Graph, runs a handful of transactions against it, and reports the
// resulting vertex/edge counts before shutting down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dreamware/teseograph/internal/config"
	"github.com/dreamware/teseograph/internal/graph"
)

func main() {
	numWorkers := flag.Int("workers", 0, "runtime worker pool size (0 selects GOMAXPROCS)")
	directed := flag.Bool("directed", true, "treat inserts/removes as directed edges")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync() //nolint:errcheck

	cfg := config.Default()
	cfg.Directed = *directed
	if *numWorkers > 0 {
		cfg.NumWorkers = *numWorkers
	}

	g := graph.New(cfg, logger)
	defer func() {
		if err := g.Close(); err != nil {
			logger.Error("graph close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seed(ctx, g); err != nil {
		logger.Error("seed failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("seeded",
		zap.Int64("vertices", g.VertexCount()),
		zap.Int64("edges", g.EdgeCount()))

	fmt.Printf("teseograph running: %d vertices, %d edges (Ctrl-C to stop)\n", g.VertexCount(), g.EdgeCount())
	<-ctx.Done()
	logger.Info("shutting down")
}

// seed inserts a small connected sample graph so the binary has
// something to report: a chain of ten vertices, each linked to the
// next.
func seed(ctx context.Context, g *graph.Graph) error {
	tx, err := g.StartTransaction(false)
	if err != nil {
		return err
	}
	const n = 10
	for v := uint64(1); v <= n; v++ {
		if err := tx.InsertVertex(ctx, v); err != nil {
			return err
		}
	}
	for v := uint64(1); v < n; v++ {
		if err := tx.InsertEdge(ctx, v, v+1, float64(v)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
