package key_test

import (
	"testing"

	"github.com/dreamware/teseograph/internal/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareTotalOrder(t *testing.T) {
	a := key.Edge(10, 20)
	b := key.Edge(10, 30)
	c := key.Edge(20, 0)

	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
	require.Equal(t, 0, a.Compare(a))
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
}

func TestVertexSortsBeforeItsEdges(t *testing.T) {
	v := key.Vertex(10)
	e := key.Edge(10, 1)
	assert.True(t, v.Less(e))
	assert.True(t, v.IsVertex())
	assert.False(t, e.IsVertex())
}

func TestSentinels(t *testing.T) {
	assert.True(t, key.Min.Less(key.Max))
	assert.True(t, key.Min.LessOrEqual(key.Min))
}
