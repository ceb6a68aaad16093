// Package coreerr defines the error taxonomy from spec.md §7: a small set
// of internal, retryable control-flow sentinels that never cross the
// engine's public boundary, and the typed, identifier-carrying errors that
// do (spec.md §6).
package coreerr

import (
	"errors"
	"fmt"
)

// CoreError is an internal control-flow signal. Values are comparable
// sentinels so the hot optimistic-read retry path never allocates.
type CoreError struct {
	kind string
}

func (e *CoreError) Error() string { return e.kind }

var (
	// ErrAbort signals an optimistic read detected a torn or invalidated
	// snapshot and must retry or escalate to an exact read.
	ErrAbort = &CoreError{kind: "optimistic abort"}

	// ErrInvalid signals the segment or leaf a caller holds a reference
	// to is no longer current; the caller must restart from the index.
	ErrInvalid = &CoreError{kind: "segment or leaf invalidated"}

	// ErrCapacity signals a segment cannot accommodate an update in
	// place; the caller must request a rebalance and retry.
	ErrCapacity = &CoreError{kind: "segment at capacity"}

	// ErrConflict signals a write-write conflict between two
	// transactions racing for the same slot (spec.md §4.3).
	ErrConflict = &CoreError{kind: "transaction conflict"}

	// ErrTooManyReaders signals the segment latch's reader counter would
	// overflow; spec.md §9 requires surfacing this rather than wrapping.
	ErrTooManyReaders = &CoreError{kind: "too many concurrent readers"}

	// ErrFatal marks an invariant violation. Callers that see this
	// should treat the process as compromised (spec.md §7 "Fatal (bug)").
	ErrFatal = &CoreError{kind: "fatal invariant violation"}
)

// LogicalReason enumerates the permanent, user-facing failure reasons
// that accompany VertexError and EdgeError.
type LogicalReason string

const (
	ReasonDoesNotExist LogicalReason = "does_not_exist"
	ReasonAlreadyExists LogicalReason = "already_exists"
	ReasonSelfEdge      LogicalReason = "self_edge"
)

// LogicalError reports a data-model violation with no identifiers
// attached (e.g. reusing a terminated transaction).
type LogicalError struct {
	Message string
}

func (e *LogicalError) Error() string { return "logical error: " + e.Message }

// NewLogicalError builds a LogicalError from a format string.
func NewLogicalError(format string, args ...any) *LogicalError {
	return &LogicalError{Message: fmt.Sprintf(format, args...)}
}

// TransactionConflict is the user-visible counterpart of ErrConflict:
// transient, the caller's transaction must roll back and retry.
type TransactionConflict struct {
	Key string
}

func (e *TransactionConflict) Error() string {
	return fmt.Sprintf("transaction conflict on %s: rollback and retry", e.Key)
}

// VertexError reports a vertex-level logical failure, carrying the
// vertex identifier but never an internal key.
type VertexError struct {
	Vertex uint64
	Reason LogicalReason
}

func (e *VertexError) Error() string {
	return fmt.Sprintf("vertex %d: %s", e.Vertex, e.Reason)
}

// EdgeError reports an edge-level logical failure, carrying the
// endpoints but never an internal key.
type EdgeError struct {
	Source      uint64
	Destination uint64
	Reason      LogicalReason
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge (%d,%d): %s", e.Source, e.Destination, e.Reason)
}

// Is reports whether err is (or wraps) target, delegating to the
// standard library; exported here so callers need only import coreerr.
func Is(err, target error) bool { return errors.Is(err, target) }
