// Package undo implements the undo record, per-transaction arena, and
// the chain visibility/write-conflict/pruning algorithms of spec.md §4.3.
//
// Per spec.md §9's "virtual rollback hook → tagged variant" design note,
// a Record does not hold a polymorphic rollback interface; instead it
// carries an Op tag and leaves interpretation of Payload to whichever
// package installed it (memstore), reached back through the small
// SlotRef interface rather than a domain import, which would otherwise
// create an import cycle between undo and memstore.
package undo

// Op tags what kind of change a Record is the pre-image of.
type Op int

const (
	// OpInsert means the slot was empty before this transaction's
	// change; rolling it back means restoring "absent".
	OpInsert Op = iota
	// OpRemove means the slot held Payload before this transaction's
	// change; rolling it back means restoring Payload as the live value.
	OpRemove
	// OpUpdate means the slot held Payload (e.g. a previous edge
	// weight) before this transaction's change.
	OpUpdate
)

// Owner is the minimal view of a transaction that the undo chain needs:
// its identity and, once committed, its commit timestamp. Implemented
// by *txn.Transaction; kept as an interface here so this package never
// imports txn (txn imports undo, not the reverse).
type Owner interface {
	TxID() uint64
	StartTS() uint64
	CommitTS() (ts uint64, committed bool)
}

// SlotRef is the hook a Record uses to splice itself out of the version
// chain it lives in and, on rollback, to restore the prior live value.
// Implemented by memstore's per-entry version slot.
type SlotRef interface {
	// Reinstall is called during rollback: it must restore the live
	// record to rec's pre-image (per rec.Op/rec.Payload) and replace
	// the slot's head pointer with rec.Next.
	Reinstall(rec *Record)
}

// Record is a single entry in a per-slot undo chain: spec.md's
// "{owner_tx, next, payload_len, payload_bytes}", with Payload held as
// a Go value rather than opaque bytes since this is an in-process
// engine, not a serialize-to-disk one.
type Record struct {
	Owner   Owner
	Next    *Record
	Op      Op
	Payload any
	Slot    SlotRef
}

// ownChangeVisibleTo reports whether r's pre-image (i.e. the state *before* r's
// owning transaction's change) is necessarily invisible to reader,
// because reader is r's own transaction or started after r's owner
// committed (spec.md §4.3 "Visibility for reader T").
func (r *Record) ownChangeVisibleTo(readerTxID, readerStartTS uint64) bool {
	if r.Owner.TxID() == readerTxID {
		return true
	}
	commitTS, committed := r.Owner.CommitTS()
	return committed && commitTS < readerStartTS
}
