package integration

import (
	"context"
	"testing"

	"github.com/dreamware/teseograph/internal/config"
	"github.com/dreamware/teseograph/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEngineEndToEndScenarios runs spec.md §8's concrete scenarios back
// to back against one live Graph, the way an embedding application
// would actually use the package: one process, several transactions in
// sequence, real background maintenance running underneath.
func TestEngineEndToEndScenarios(t *testing.T) {
	ctx := context.Background()
	cfg := config.New(config.WithNumWorkers(2))
	g := graph.New(cfg, nil)
	defer func() { require.NoError(t, g.Close()) }()

	// Scenario 1: two edges, read-after-write.
	t1, err := g.StartTransaction(false)
	require.NoError(t, err)
	for _, v := range []uint64{10, 20, 30, 40} {
		require.NoError(t, t1.InsertVertex(ctx, v))
	}
	require.NoError(t, t1.InsertEdge(ctx, 10, 20, 1020))
	require.NoError(t, t1.InsertEdge(ctx, 10, 30, 1030))
	require.NoError(t, t1.InsertEdge(ctx, 10, 40, 1040))
	require.NoError(t, t1.Commit())

	t2, err := g.StartTransaction(true)
	require.NoError(t, err)
	type pair struct {
		dst uint64
		w   float64
	}
	var readAfterWrite []pair
	require.NoError(t, t2.ScanOut(ctx, 10, func(dst uint64, w float64) bool {
		readAfterWrite = append(readAfterWrite, pair{dst, w})
		return true
	}))
	require.NoError(t, t2.Commit())
	assert.Equal(t, []pair{{20, 1020}, {30, 1030}, {40, 1040}}, readAfterWrite)

	// Scenario 2: a committed removal is visible; a concurrent
	// transaction's uncommitted removal is not.
	t3, err := g.StartTransaction(false)
	require.NoError(t, err)
	require.NoError(t, t3.RemoveEdge(ctx, 10, 20))
	require.NoError(t, t3.Commit())

	t4, err := g.StartTransaction(false)
	require.NoError(t, err)
	require.NoError(t, t4.RemoveEdge(ctx, 10, 40))

	t5, err := g.StartTransaction(true)
	require.NoError(t, err)
	var concurrentView []pair
	require.NoError(t, t5.ScanOut(ctx, 10, func(dst uint64, w float64) bool {
		concurrentView = append(concurrentView, pair{dst, w})
		return true
	}))
	require.NoError(t, t5.Commit())
	assert.Equal(t, []pair{{30, 1030}, {40, 1040}}, concurrentView)
	require.NoError(t, t4.Rollback())

	// Scenario 6: a transaction cannot be terminated while one of its
	// iterators is still open.
	t6, err := g.StartTransaction(false)
	require.NoError(t, err)
	require.NoError(t, t6.InsertVertex(ctx, 50))
	it := t6.Iterator()
	err = t6.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction cannot be terminated")
	it.Close()
	require.NoError(t, t6.Commit())

	assert.Equal(t, int64(5), g.VertexCount())
	assert.Equal(t, int64(2), g.EdgeCount())
}

// TestEngineSurvivesRebalanceUnderLoad inserts enough vertices and
// edges to force repeated segment-capacity rebalances (spread and, once
// spreading can no longer make room, split) and checks every insert is
// still readable afterward in the correct order.
func TestEngineSurvivesRebalanceUnderLoad(t *testing.T) {
	ctx := context.Background()
	cfg := config.New(
		config.WithNumWorkers(2),
		config.WithLeafNumSegments(4),
		config.WithSegmentCapacityBytes(8),
		config.WithGCPassInterval(0),
		config.WithTxnListRefreshInterval(0),
		config.WithMergerInterval(0),
	)
	g := graph.New(cfg, nil)
	defer func() { require.NoError(t, g.Close()) }()

	const hub = uint64(1)
	const n = 200

	tx, err := g.StartTransaction(false)
	require.NoError(t, err)
	require.NoError(t, tx.InsertVertex(ctx, hub))
	for d := uint64(2); d <= n+1; d++ {
		require.NoError(t, tx.InsertVertex(ctx, d))
		require.NoError(t, tx.InsertEdge(ctx, hub, d, float64(d)))
	}
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(n+1), g.VertexCount())
	assert.Equal(t, int64(n), g.EdgeCount())

	reader, err := g.StartTransaction(true)
	require.NoError(t, err)
	var dsts []uint64
	require.NoError(t, reader.ScanOut(ctx, hub, func(dst uint64, _ float64) bool {
		dsts = append(dsts, dst)
		return true
	}))
	require.NoError(t, reader.Commit())

	require.Len(t, dsts, n)
	for i, dst := range dsts {
		assert.Equal(t, uint64(i+2), dst)
	}
}
