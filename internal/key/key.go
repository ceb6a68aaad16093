// Package key defines the ordered (source, destination) pair used to
// address vertices and edges throughout the store.
//
// A vertex is represented as a key whose destination is zero; it sorts
// before any of its own outgoing edges because 0 is reserved and can
// never be a valid destination for a real edge in this encoding.
package key

import "fmt"

// NoVertex is the sentinel vertex id: 0 is never a valid vertex.
const NoVertex uint64 = 0

// Key is the ordered pair (source, destination) used to address both
// vertices (destination == NoVertex) and directed edges.
type Key struct {
	Source      uint64
	Destination uint64
}

// Min is the smallest possible key, used as a leaf/segment low fence.
var Min = Key{Source: 0, Destination: 0}

// Max is the largest possible key, used as a leaf/segment high fence.
var Max = Key{Source: ^uint64(0), Destination: ^uint64(0)}

// Vertex builds the key representing vertex v itself (no destination).
func Vertex(v uint64) Key {
	return Key{Source: v, Destination: NoVertex}
}

// Edge builds the key representing the directed edge (src, dst).
func Edge(src, dst uint64) Key {
	return Key{Source: src, Destination: dst}
}

// IsVertex reports whether k addresses a vertex header rather than an edge.
func (k Key) IsVertex() bool {
	return k.Destination == NoVertex
}

// Compare returns -1, 0 or 1 as k is lexicographically less than, equal
// to, or greater than other, comparing Source first and Destination as
// the tiebreaker. This is the total order required by spec.md §3.
func (k Key) Compare(other Key) int {
	switch {
	case k.Source < other.Source:
		return -1
	case k.Source > other.Source:
		return 1
	case k.Destination < other.Destination:
		return -1
	case k.Destination > other.Destination:
		return 1
	default:
		return 0
	}
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool { return k.Compare(other) < 0 }

// LessOrEqual reports whether k sorts at or before other.
func (k Key) LessOrEqual(other Key) bool { return k.Compare(other) <= 0 }

// String renders the key as "v(source)" for a vertex or
// "e(source,destination)" for an edge, for logging and tests.
func (k Key) String() string {
	if k.IsVertex() {
		return fmt.Sprintf("v(%d)", k.Source)
	}
	return fmt.Sprintf("e(%d,%d)", k.Source, k.Destination)
}
