package undo

// Resolution is the outcome of walking a version chain for a reader
// (spec.md §4.3 "Visibility for reader T").
type Resolution struct {
	// ReadLive is true when the reader should read the live record
	// outside the chain (either the chain is empty, the change is the
	// reader's own, or it committed strictly before the reader started).
	ReadLive bool
	// Record is the chain entry whose Payload is the visible value,
	// set only when ReadLive is false and Visible is true.
	Record *Record
	// Visible is false when the chain was exhausted without finding a
	// version visible to the reader at all.
	Visible bool
}

// Resolve walks the chain rooted at head to find the version visible to
// a reader with the given transaction id and start timestamp, per
// spec.md §4.3.
//
// Each record's Payload is the slot's pre-image: the value as it stood
// before that record's Owner wrote. That makes a record's payload valid
// for exactly the window between its predecessor-in-time's commit and
// its own owner's write — so checking whether a candidate record cur is
// the right one to return means checking cur's Next (the one committed
// immediately before cur's owner wrote), not cur itself: cur is visible
// once cur.Next's owner has committed at or before the reader's start.
// A nil Next with nothing yet confirming the floor of cur's validity
// window means the chain doesn't go back far enough to vouch for cur at
// all, and Resolve reports the reader as unable to find a version
// (callers should treat this as a pruning invariant violation).
func Resolve(head *Record, readerTxID, readerStartTS uint64) Resolution {
	if head == nil {
		return Resolution{ReadLive: true, Visible: true}
	}
	if head.ownChangeVisibleTo(readerTxID, readerStartTS) {
		return Resolution{ReadLive: true, Visible: true}
	}
	cur := head
	for {
		next := cur.Next
		if next == nil {
			return Resolution{}
		}
		if commitTS, committed := next.Owner.CommitTS(); committed && commitTS <= readerStartTS {
			return Resolution{Record: cur, Visible: true}
		}
		cur = next
	}
}

// HasWriteConflict reports whether a write by writerTxID/writerStartTS
// against a slot whose chain head is head must fail with ErrConflict
// (spec.md §4.3 "Write conflict detection"): true unless the writer
// already owns head, or head's owner is committed and visible to the
// writer (writerStartTS is after its commit).
func HasWriteConflict(head *Record, writerTxID, writerStartTS uint64) bool {
	if head == nil {
		return false
	}
	if head.Owner.TxID() == writerTxID {
		return false
	}
	commitTS, committed := head.Owner.CommitTS()
	if !committed {
		return true
	}
	return !(writerStartTS > commitTS)
}

// Prune walks a chain and drops every record no active reader in
// active (start timestamps, any order) could still need, per spec.md
// §4.3 steps 1-4. It returns the new chain head and the records that
// were dropped; Prune has no notion of epochs, so retiring the dropped
// records is left to the caller.
//
// The chain's true head gets special treatment only when it is itself
// committed: a reader can take the live-record shortcut for it (step
// 3's "no s ∈ S lies below commit_ts" case drops the whole chain), so
// only readers that can't shortcut ever walk further. When the true
// head is still uncommitted (some write is in flight), no reader can
// shortcut at all, and the committed suffix is walked directly. Either
// way, behind that point every record follows the same rule (step 4):
// it is kept iff some still-unsatisfied reader's start timestamp lands
// on it (its successor's commit_ts ≤ s), and the successor of the
// oldest landed-on record is kept to vouch for it; every other record,
// including ones readers merely pass through, is dropped and the chain
// relinked around it.
func Prune(head *Record, active []uint64) (*Record, []*Record) {
	if head == nil {
		return nil, nil
	}

	var frontUncommitted []*Record
	cursor := head
	for cursor != nil {
		if _, committed := cursor.Owner.CommitTS(); committed {
			break
		}
		frontUncommitted = append(frontUncommitted, cursor)
		cursor = cursor.Next
	}
	if cursor == nil {
		// Every record in the chain is still in flight (the owning
		// transaction wrote the same key more than once before
		// committing). None of it is safe to touch.
		return head, nil
	}

	remaining := active
	if len(frontUncommitted) == 0 {
		// No other reader can take the live shortcut past cursor's own
		// change while an uncommitted prefix exists ahead of it, so the
		// shortcut filter only applies when cursor itself is the true
		// head (ownChangeVisibleTo requires commit_ts < readerStartTS,
		// strictly; s == commit_ts still has to dig).
		commitTS, _ := cursor.Owner.CommitTS()
		var digging []uint64
		for _, s := range active {
			if !(commitTS < s) {
				digging = append(digging, s)
			}
		}
		remaining = digging
	} else {
		// The uncommitted prefix's own owner never digs into the
		// committed suffix at all: its reads match head by TxID in
		// ownChangeVisibleTo and take the live shortcut before Next is
		// ever examined, regardless of start timestamp. An active start
		// timestamp equal to that owner's own start is that owner (start
		// timestamps are unique), so it contributes nothing to what the
		// committed suffix must retain.
		ownerStartTS := head.Owner.StartTS()
		var digging []uint64
		for _, s := range active {
			if s != ownerStartTS {
				digging = append(digging, s)
			}
		}
		remaining = digging
	}

	newCommittedHead, dropped := pruneTail(cursor, remaining)

	if len(frontUncommitted) > 0 {
		frontUncommitted[len(frontUncommitted)-1].Next = newCommittedHead
		return head, dropped
	}
	return newCommittedHead, dropped
}

// pruneTail prunes the committed suffix rooted at node (every record
// from node onward is committed). Resolve never returns a record unless
// its Next is committed at or before the reader's start — so a record
// is worth keeping only if it is the unique record some remaining
// timestamp actually resolves to under that rule, walked exactly the
// way Resolve walks it (each timestamp lands on the first record whose
// successor's commit_ts is at or below it, and is then spent: it can
// never also land on an earlier record).
//
// Because commit timestamps strictly decrease along the chain,
// relinking around a record with no landers of its own only ever
// widens a still-kept predecessor's threshold to an even older commit
// — never past a timestamp that actually needed the skipped record —
// so it never changes any surviving reader's resolution. The one
// record that must never be relinked away for free is the successor of
// the last (oldest) record that does have a lander: without it that
// lander's Next would go nil, and Resolve treats nil Next as "can't
// vouch for this record" rather than "valid all the way back".
func pruneTail(node *Record, remaining []uint64) (*Record, []*Record) {
	var chain []*Record
	for n := node; n != nil; n = n.Next {
		chain = append(chain, n)
	}
	if len(chain) == 0 {
		return nil, nil
	}

	keep := make([]bool, len(chain))
	deepestLander := -1
	rem := remaining
	for i := 0; i < len(chain)-1 && len(rem) > 0; i++ {
		nextCommitTS, _ := chain[i+1].Owner.CommitTS()
		var landed bool
		kept := rem[:0:0]
		for _, s := range rem {
			if nextCommitTS <= s {
				landed = true
			} else {
				kept = append(kept, s)
			}
		}
		rem = kept
		if landed {
			keep[i] = true
			deepestLander = i
		}
	}
	if deepestLander >= 0 && deepestLander+1 < len(chain) {
		keep[deepestLander+1] = true
	}

	var newHead, lastKept *Record
	var dropped []*Record
	for i, n := range chain {
		if keep[i] {
			if lastKept == nil {
				newHead = n
			} else {
				lastKept.Next = n
			}
			lastKept = n
		} else {
			dropped = append(dropped, n)
		}
	}
	if lastKept != nil {
		lastKept.Next = nil
	}
	return newHead, dropped
}
