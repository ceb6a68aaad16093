package epoch_test

import (
	"testing"

	"github.com/dreamware/teseograph/internal/epoch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinEpochIgnoresIdleSlots(t *testing.T) {
	m := epoch.NewManager()
	a := m.Register()
	b := m.Register()

	eA := m.EnterEpoch(a)
	m.ExitEpoch(b)

	assert.Equal(t, eA, m.MinEpoch())
}

func TestMinEpochAdvancesAsThreadsExit(t *testing.T) {
	m := epoch.NewManager()
	a := m.Register()
	b := m.Register()

	eA := m.EnterEpoch(a)
	m.EnterEpoch(b)
	assert.Equal(t, eA, m.MinEpoch())

	m.ExitEpoch(a)
	after := m.MinEpoch()
	assert.Greater(t, after, eA)
}

func TestGCReclaimsOnlyBeforeMinEpoch(t *testing.T) {
	m := epoch.NewManager()
	gc := epoch.NewGC(m, nil)
	a := m.Register()

	reclaimed := make([]int, 0)
	e1 := m.EnterEpoch(a)
	gc.Mark(a, e1, func() { reclaimed = append(reclaimed, 1) })

	m.ExitEpoch(a)
	e2 := m.EnterEpoch(a)
	gc.Mark(a, e2, func() { reclaimed = append(reclaimed, 2) })

	// Thread a is still active at e2, so nothing before e2 is safe to
	// drop until a exits or advances past it.
	n := gc.ReclaimPass()
	assert.LessOrEqual(t, n, 1)

	m.ExitEpoch(a)
	n2 := gc.ReclaimPass()
	assert.Equal(t, 2-n, n2)
	assert.ElementsMatch(t, []int{1, 2}, reclaimed)
}

func TestUnregisterMovesQueueToOrphan(t *testing.T) {
	m := epoch.NewManager()
	gc := epoch.NewGC(m, nil)
	a := m.Register()

	e1 := m.EnterEpoch(a)
	ran := false
	gc.Mark(a, e1, func() { ran = true })

	gc.Unregister(a)
	m.ExitEpoch(a)
	m.Unregister(a)

	n := gc.ReclaimPass()
	require.Equal(t, 1, n)
	assert.True(t, ran)
}
