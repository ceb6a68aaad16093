package memstore

import "errors"

// errNotSureHasSource is raised internally by a segment's write path when
// it cannot locally determine whether an edge's source vertex exists
// (spec.md §4.5 step 6, §4.9): the caller releases the latch, checks the
// preceding segment, and retries the write with an "already verified"
// flag. It never crosses the memstore package boundary.
var errNotSureHasSource = errors.New("cannot determine locally whether source vertex exists")
