package reactive

import "sync/atomic"

// lastID numbers effects, refs and scopes across all runtimes.
var lastID atomic.Uint64

// nextID returns a fresh id. Effect ids order scheduler jobs by creation.
func nextID() uint64 {
	return lastID.Add(1)
}
