package graph

import "github.com/dreamware/teseograph/internal/coreerr"

// The error kinds that cross the transaction boundary (spec.md §6):
// aliased here so callers of this package never need to import
// internal/coreerr directly.
type (
	LogicalError        = coreerr.LogicalError
	TransactionConflict = coreerr.TransactionConflict
	VertexError         = coreerr.VertexError
	EdgeError           = coreerr.EdgeError
	LogicalReason       = coreerr.LogicalReason
)

const (
	ReasonDoesNotExist  = coreerr.ReasonDoesNotExist
	ReasonAlreadyExists = coreerr.ReasonAlreadyExists
	ReasonSelfEdge      = coreerr.ReasonSelfEdge
)
