package undo_test

import (
	"testing"

	"github.com/dreamware/teseograph/internal/undo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOwner is a minimal undo.Owner stand-in for tests that don't need a
// real transaction.
type fakeOwner struct {
	id       uint64
	startTS  uint64
	commitTS uint64
	done     bool
}

func (f *fakeOwner) TxID() uint64 { return f.id }
func (f *fakeOwner) StartTS() uint64 { return f.startTS }
func (f *fakeOwner) CommitTS() (uint64, bool) { return f.commitTS, f.done }

func committedAt(id, ts uint64) *fakeOwner {
	return &fakeOwner{id: id, startTS: ts, commitTS: ts, done: true}
}

func pending(id, startTS uint64) *fakeOwner {
	return &fakeOwner{id: id, startTS: startTS}
}

func rec(owner undo.Owner, payload any) *undo.Record {
	return &undo.Record{Owner: owner, Payload: payload}
}

func TestArenaAllocGrowsAcrossSlabs(t *testing.T) {
	a := undo.NewArena(4)
	var ptrs []*undo.Record
	for i := 0; i < 10; i++ {
		ptrs = append(ptrs, a.Alloc())
	}
	require.Equal(t, 10, a.Len())

	seen := make(map[*undo.Record]bool)
	for _, p := range ptrs {
		assert.False(t, seen[p], "each Alloc must return a distinct pointer")
		seen[p] = true
	}

	out := a.Records()
	require.Len(t, out, 10)
	for i := range ptrs {
		assert.Same(t, ptrs[i], out[i])
	}
}

func TestArenaRecordsExcludesUnallocatedTailOfLastSlab(t *testing.T) {
	a := undo.NewArena(8)
	a.Alloc()
	a.Alloc()
	a.Alloc()

	out := a.Records()
	assert.Len(t, out, 3)
}

func TestResolveReadsLiveWhenChainEmpty(t *testing.T) {
	res := undo.Resolve(nil, 1, 100)
	assert.True(t, res.ReadLive)
	assert.True(t, res.Visible)
}

func TestResolveReadsLiveForOwnChange(t *testing.T) {
	owner := pending(5, 50)
	head := rec(owner, "old")
	res := undo.Resolve(head, 5, 50)
	assert.True(t, res.ReadLive)
}

func TestResolveReadsLiveWhenHeadCommittedBeforeReaderStarted(t *testing.T) {
	owner := committedAt(1, 10)
	head := rec(owner, "old")
	res := undo.Resolve(head, 99, 20)
	assert.True(t, res.ReadLive)
}

func TestResolveWalksChainPastConcurrentChange(t *testing.T) {
	newer := committedAt(2, 30)
	older := committedAt(1, 10)
	head := rec(newer, "mid-value")
	head.Next = rec(older, "old-value")

	res := undo.Resolve(head, 99, 15)
	require.False(t, res.ReadLive)
	require.True(t, res.Visible)
	assert.Equal(t, head, res.Record)
	assert.Equal(t, "mid-value", res.Record.Payload)
}

func TestResolveInvisibleWhenChainExhausted(t *testing.T) {
	newer := committedAt(2, 30)
	head := rec(newer, "mid-value")

	res := undo.Resolve(head, 99, 5)
	assert.False(t, res.Visible)
}

func TestHasWriteConflictFalseWhenWriterOwnsHead(t *testing.T) {
	owner := pending(7, 40)
	head := rec(owner, "x")
	assert.False(t, undo.HasWriteConflict(head, 7, 40))
}

func TestHasWriteConflictTrueWhenHeadUncommitted(t *testing.T) {
	owner := pending(7, 40)
	head := rec(owner, "x")
	assert.True(t, undo.HasWriteConflict(head, 8, 41))
}

func TestHasWriteConflictFalseWhenHeadCommittedBeforeWriterStarted(t *testing.T) {
	owner := committedAt(7, 10)
	head := rec(owner, "x")
	assert.False(t, undo.HasWriteConflict(head, 8, 20))
}

func TestHasWriteConflictTrueWhenHeadCommittedAfterWriterStarted(t *testing.T) {
	owner := committedAt(7, 30)
	head := rec(owner, "x")
	assert.True(t, undo.HasWriteConflict(head, 8, 20))
}

// TestPruneRetainsOnlyVersionsActiveReadersCanStillNeed mirrors the
// pruning walkthrough: a chain committed at timestamps 15, 13, 11, 8, 5,
// 3, 1 (newest first) plus an uncommitted head from a transaction that
// started at 16, pruned against active start timestamps {16, 9, 6}.
// Resolve lands a reader on a record by checking the record AFTER it,
// not the record itself, so: reader 16 never even leaves the
// uncommitted head (head.Next is commit 15, and 15 ≤ 16), reader 9
// walks to commit 11 (commit 11's successor is commit 8, and 8 ≤ 9),
// and reader 6 walks past that to commit 8 (commit 8's successor is
// commit 5, and 5 ≤ 6). Commits 15 and 13 are never landed on — 15
// only has to exist long enough to vouch for the uncommitted head, and
// the chain beyond it survives anyway because 11 has its own lander —
// so both get dropped; commit 5 survives purely to vouch for commit 8,
// and commits 3 and 1 are never landed on or needed.
func TestPruneRetainsOnlyVersionsActiveReadersCanStillNeed(t *testing.T) {
	uncommittedHead := rec(pending(200, 16), "v16")
	c15 := rec(committedAt(115, 15), "v15")
	c13 := rec(committedAt(113, 13), "v13")
	c11 := rec(committedAt(111, 11), "v11")
	c8 := rec(committedAt(108, 8), "v8")
	c5 := rec(committedAt(105, 5), "v5")
	c3 := rec(committedAt(103, 3), "v3")
	c1 := rec(committedAt(101, 1), "v1")

	uncommittedHead.Next = c15
	c15.Next = c13
	c13.Next = c11
	c11.Next = c8
	c8.Next = c5
	c5.Next = c3
	c3.Next = c1

	newHead, dropped := undo.Prune(uncommittedHead, []uint64{16, 9, 6})

	var kept []*undo.Record
	for n := newHead; n != nil; n = n.Next {
		kept = append(kept, n)
	}

	require.Len(t, kept, 4)
	assert.Same(t, uncommittedHead, kept[0])
	assert.Equal(t, "v11", kept[1].Payload)
	assert.Equal(t, "v8", kept[2].Payload)
	assert.Equal(t, "v5", kept[3].Payload)
	assert.Nil(t, kept[3].Next)

	assert.Len(t, dropped, 4)
	droppedPayloads := make([]any, len(dropped))
	for i, d := range dropped {
		droppedPayloads[i] = d.Payload
	}
	assert.ElementsMatch(t, []any{"v15", "v13", "v3", "v1"}, droppedPayloads)

	// The pruned chain must still resolve every active reader to the
	// same record Resolve would have picked out of the original chain.
	r16 := undo.Resolve(newHead, 999, 16)
	require.True(t, r16.Visible)
	assert.Equal(t, "v16", r16.Record.Payload)

	r9 := undo.Resolve(newHead, 999, 9)
	require.True(t, r9.Visible)
	assert.Equal(t, "v11", r9.Record.Payload)

	r6 := undo.Resolve(newHead, 999, 6)
	require.True(t, r6.Visible)
	assert.Equal(t, "v8", r6.Record.Payload)
}

// TestPruneKeepsGatekeeperAndEachLandingRecordWhenHeadCommitted covers
// the other top-level branch: the true head is itself committed, so a
// reader whose start timestamp is strictly after its commit takes the live
// shortcut and never touches the chain; only readers below it dig in,
// using the ordinary landing rule from there on.
func TestPruneKeepsGatekeeperAndEachLandingRecordWhenHeadCommitted(t *testing.T) {
	c30 := rec(committedAt(201, 30), "v30")
	c20 := rec(committedAt(202, 20), "v20")
	c10 := rec(committedAt(203, 10), "v10")
	c30.Next = c20
	c20.Next = c10

	newHead, dropped := undo.Prune(c30, []uint64{25, 15})

	var kept []*undo.Record
	for n := newHead; n != nil; n = n.Next {
		kept = append(kept, n)
	}
	require.Len(t, kept, 3)
	assert.Equal(t, "v30", kept[0].Payload)
	assert.Equal(t, "v20", kept[1].Payload)
	assert.Equal(t, "v10", kept[2].Payload)
	assert.Empty(t, dropped)

	r25 := undo.Resolve(newHead, 999, 25)
	require.True(t, r25.Visible)
	assert.Equal(t, "v30", r25.Record.Payload)

	r15 := undo.Resolve(newHead, 999, 15)
	require.True(t, r15.Visible)
	assert.Equal(t, "v20", r15.Record.Payload)
}

// TestPruneDropsEntireChainWhenEveryActiveReaderTakesTheLiveShortcut
// checks step 3's other outcome: when the committed head's commit_ts is
// strictly before every active reader's start timestamp, nobody ever walks
// the chain, so it collapses to nil.
func TestPruneDropsEntireChainWhenEveryActiveReaderTakesTheLiveShortcut(t *testing.T) {
	c10 := rec(committedAt(1, 10), "v10")
	c5 := rec(committedAt(2, 5), "v5")
	c10.Next = c5

	newHead, dropped := undo.Prune(c10, []uint64{20, 15})
	assert.Nil(t, newHead)
	assert.Len(t, dropped, 2)
}

func TestPruneKeepsAllWhenChainFullyUncommitted(t *testing.T) {
	head := rec(pending(1, 5), "a")
	head.Next = rec(pending(1, 5), "b")

	newHead, dropped := undo.Prune(head, []uint64{5})
	assert.Same(t, head, newHead)
	assert.Empty(t, dropped)
}
