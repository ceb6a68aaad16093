// Package memstore implements the trie-indexed tree of fixed-capacity
// leaves, each partitioned into sparse-file or dense-file segments,
// that is the engine's in-memory store of vertices and edges (spec.md
// §4, §4.5, §4.6).
package memstore

import (
	"github.com/dreamware/teseograph/internal/key"
	"github.com/dreamware/teseograph/internal/undo"
)

// Entry is one stored vertex or edge: its live value plus a version
// slot pointing at the head of its undo chain. It is the SlotRef
// undo.Record.Slot refers to (spec.md §4.3's "Reinstall" hook),
// satisfying that interface structurally so undo never imports
// memstore.
type Entry struct {
	Key key.Key

	// Exists is the live existence bit: false means the key has been
	// removed (or never inserted) as far as the current writer is
	// concerned.
	Exists bool
	// Weight is the live payload for an edge entry; unused (zero) for
	// vertices, which carry no weight of their own.
	Weight float64

	// Head is the most recent undo record still retained for this
	// entry, or nil if no reader needs its history (spec.md §4.3).
	Head *undo.Record
}

// Reinstall implements undo.SlotRef: it restores e to the state rec is
// the pre-image of, then splices rec out of the chain.
func (e *Entry) Reinstall(rec *undo.Record) {
	switch rec.Op {
	case undo.OpInsert:
		e.Exists = false
		e.Weight = 0
	case undo.OpRemove:
		e.Exists = true
		if w, ok := rec.Payload.(float64); ok {
			e.Weight = w
		}
	case undo.OpUpdate:
		if w, ok := rec.Payload.(float64); ok {
			e.Weight = w
		}
	}
	e.Head = rec.Next
}
