package memstore_test

import (
	"context"
	"testing"

	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorPauseThenResumeSucceedsWithoutInterveningWrite(t *testing.T) {
	leaf := memstore.NewLeaf(key.Min, key.Max, 1, 16, 0.75, 0.25)
	ctx := context.Background()

	cur, err := memstore.OpenCursor(ctx, leaf, 0, key.Vertex(1))
	require.NoError(t, err)
	defer cur.Close()

	cur.Pause()
	assert.False(t, cur.Held())

	ok, err := cur.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cur.Held())
}

func TestCursorResumeFailsAfterInterveningWrite(t *testing.T) {
	leaf := memstore.NewLeaf(key.Min, key.Max, 1, 16, 0.75, 0.25)
	ctx := context.Background()
	seg := leaf.Segments[0]

	cur, err := memstore.OpenCursor(ctx, leaf, 0, key.Vertex(1))
	require.NoError(t, err)
	defer cur.Close()
	cur.Pause()

	require.NoError(t, seg.AcquireWrite(ctx))
	seg.GetOrCreate(key.Vertex(7))
	seg.ReleaseWrite()

	ok, err := cur.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "an intervening write should invalidate a paused cursor")
}

func TestCursorResumeFailsAfterLeafInvalidation(t *testing.T) {
	leaf := memstore.NewLeaf(key.Min, key.Max, 1, 16, 0.75, 0.25)
	ctx := context.Background()

	cur, err := memstore.OpenCursor(ctx, leaf, 0, key.Vertex(1))
	require.NoError(t, err)
	defer cur.Close()
	cur.Pause()

	leaf.Invalidate()

	ok, err := cur.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorCloseReleasesLatchAndRejectsFurtherResume(t *testing.T) {
	leaf := memstore.NewLeaf(key.Min, key.Max, 1, 16, 0.75, 0.25)
	ctx := context.Background()

	cur, err := memstore.OpenCursor(ctx, leaf, 0, key.Vertex(1))
	require.NoError(t, err)
	cur.Close()

	_, err = cur.Resume(ctx)
	assert.Error(t, err)

	// segment must be free for another writer now that the cursor's
	// reader latch was released by Close.
	require.NoError(t, leaf.Segments[0].AcquireWrite(ctx))
	leaf.Segments[0].ReleaseWrite()
}

func TestCursorCrossSegmentMovesToNewSegment(t *testing.T) {
	leaf := memstore.NewLeaf(key.Vertex(0), key.Vertex(100), 2, 16, 0.75, 0.25)
	ctx := context.Background()

	cur, err := memstore.OpenCursor(ctx, leaf, 0, leaf.Segments[0].FenceLo())
	require.NoError(t, err)
	defer cur.Close()

	require.NoError(t, cur.CrossSegment(ctx, leaf, 1, leaf.Segments[1].FenceLo()))
	assert.Equal(t, leaf.Segments[1], cur.Segment())
	assert.True(t, cur.Held())
}
