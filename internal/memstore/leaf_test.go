package memstore_test

import (
	"testing"

	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeafSegmentsHaveTouchingFences(t *testing.T) {
	leaf := memstore.NewLeaf(key.Vertex(0), key.Vertex(1000), 4, 16, 0.75, 0.25)
	require.Len(t, leaf.Segments, 4)

	for i := 1; i < len(leaf.Segments); i++ {
		assert.Equal(t, leaf.Segments[i-1].FenceHi(), leaf.Segments[i].FenceLo(),
			"adjacent segments must touch")
	}
	assert.Equal(t, key.Vertex(0), leaf.FenceLo())
	assert.Equal(t, key.Vertex(1000), leaf.FenceHi())
}

func TestLeafSegmentForFindsContainingSegment(t *testing.T) {
	leaf := memstore.NewLeaf(key.Vertex(0), key.Vertex(100), 4, 16, 0.75, 0.25)

	for _, v := range []uint64{0, 25, 50, 75, 100} {
		seg := leaf.SegmentFor(key.Vertex(v))
		require.NotNil(t, seg, "vertex %d should fall within some segment", v)
		assert.True(t, seg.Contains(key.Vertex(v)))
	}
}

func TestLeafSegmentIndexRoundTrips(t *testing.T) {
	leaf := memstore.NewLeaf(key.Vertex(0), key.Vertex(100), 4, 16, 0.75, 0.25)
	for i, seg := range leaf.Segments {
		assert.Equal(t, i, leaf.SegmentIndex(seg))
	}
	assert.Equal(t, -1, leaf.SegmentIndex(memstore.NewSegment(key.Min, key.Max, 1, 0.5, 0.1)))
}

func TestLeafInvalidateIsObservable(t *testing.T) {
	leaf := memstore.NewLeaf(key.Vertex(0), key.Vertex(100), 2, 16, 0.75, 0.25)
	assert.False(t, leaf.IsInvalid())
	leaf.Invalidate()
	assert.True(t, leaf.IsInvalid())
}

func TestNewLeafSingleSegmentSpansWholeRange(t *testing.T) {
	leaf := memstore.NewLeaf(key.Min, key.Max, 1, 16, 0.75, 0.25)
	require.Len(t, leaf.Segments, 1)
	assert.Equal(t, key.Min, leaf.Segments[0].FenceLo())
	assert.Equal(t, key.Max, leaf.Segments[0].FenceHi())
}
