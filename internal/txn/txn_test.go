package txn_test

import (
	"testing"

	"github.com/dreamware/teseograph/internal/txn"
	"github.com/dreamware/teseograph/internal/undo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockIsMonotonicAndNeverZero(t *testing.T) {
	c := txn.NewClock()
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		v := c.Next()
		assert.Greater(t, v, prev)
		prev = v
	}
}

type fakeFolder struct {
	calls []struct{ ts uint64; dv, de int64 }
}

func (f *fakeFolder) Fold(ts uint64, dv, de int64) {
	f.calls = append(f.calls, struct {
		ts     uint64
		dv, de int64
	}{ts, dv, de})
}

func TestTransactionCommitAssignsTimestampAndFoldsDelta(t *testing.T) {
	clock := txn.NewClock()
	folder := &fakeFolder{}
	tx := txn.New(clock, folder, false)
	tx.AddDelta(1, 2)

	require.NoError(t, tx.Commit())
	assert.Equal(t, txn.Committed, tx.State())

	commitTS, committed := tx.CommitTS()
	require.True(t, committed)
	assert.Greater(t, commitTS, tx.StartTS())

	require.Len(t, folder.calls, 1)
	assert.Equal(t, commitTS, folder.calls[0].ts)
	assert.EqualValues(t, 1, folder.calls[0].dv)
	assert.EqualValues(t, 2, folder.calls[0].de)
}

func TestTransactionCommitTwiceFails(t *testing.T) {
	clock := txn.NewClock()
	tx := txn.New(clock, nil, false)
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Commit())
}

// fakeSlot is a minimal undo.SlotRef used to observe Rollback's splice.
type fakeSlot struct {
	reinstalled []*undo.Record
}

func (s *fakeSlot) Reinstall(rec *undo.Record) {
	s.reinstalled = append(s.reinstalled, rec)
}

func TestTransactionRollbackWalksArenaNewestFirst(t *testing.T) {
	clock := txn.NewClock()
	tx := txn.New(clock, nil, false)

	slot := &fakeSlot{}
	r1 := tx.Arena().Alloc()
	r1.Owner = tx
	r1.Slot = slot
	r1.Payload = "first"

	r2 := tx.Arena().Alloc()
	r2.Owner = tx
	r2.Slot = slot
	r2.Payload = "second"

	require.NoError(t, tx.Rollback())
	assert.Equal(t, txn.Aborted, tx.State())

	require.Len(t, slot.reinstalled, 2)
	assert.Equal(t, "second", slot.reinstalled[0].Payload)
	assert.Equal(t, "first", slot.reinstalled[1].Payload)
}

func TestTransactionCommitBlockedWhileIteratorActive(t *testing.T) {
	clock := txn.NewClock()
	tx := txn.New(clock, nil, true)
	tx.BeginIteration()
	assert.Error(t, tx.Commit())
	tx.EndIteration()
	assert.NoError(t, tx.Commit())
}

func TestTSWriteEncodesLockedState(t *testing.T) {
	clock := txn.NewClock()
	tx := txn.New(clock, nil, false)
	assert.Greater(t, tx.TSWrite(), tx.StartTS())

	require.NoError(t, tx.Commit())
	assert.Equal(t, tx.StartTS(), tx.TSWrite())
}

func TestListInsertRemoveAndSnapshot(t *testing.T) {
	l := txn.NewList(4)
	clock := txn.NewClock()
	a := txn.New(clock, nil, true)
	b := txn.New(clock, nil, true)

	require.NoError(t, l.Insert(a))
	require.NoError(t, l.Insert(b))
	assert.Equal(t, 2, l.Len())

	snap := l.Snapshot()
	assert.ElementsMatch(t, []uint64{a.StartTS(), b.StartTS()}, snap)

	l.Remove(a)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []uint64{b.StartTS()}, l.Snapshot())
}

func TestListInsertFailsAtCapacity(t *testing.T) {
	l := txn.NewList(1)
	clock := txn.NewClock()
	require.NoError(t, l.Insert(txn.New(clock, nil, true)))
	assert.Error(t, l.Insert(txn.New(clock, nil, true)))
}

func TestSequenceSortsDescendingAndTracksOldest(t *testing.T) {
	seq := txn.NewSequence([]uint64{3, 9, 1, 6})
	assert.Equal(t, []uint64{9, 6, 3, 1}, seq.StartTimestamps())

	oldest, ok := seq.Oldest()
	require.True(t, ok)
	assert.EqualValues(t, 1, oldest)
}

func TestSequenceRefCounting(t *testing.T) {
	seq := txn.NewSequence([]uint64{5})
	seq.Acquire()
	assert.False(t, seq.Release())
	assert.True(t, seq.Release())
}

func TestSequenceVisibleTo(t *testing.T) {
	seq := txn.NewSequence([]uint64{10, 20})
	assert.True(t, seq.VisibleTo(5))
	assert.False(t, seq.VisibleTo(15))
}
