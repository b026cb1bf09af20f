package models

import "time"

// SubtreeFailure records a directory whose expansion failed.
type SubtreeFailure struct {
	Path string // Directory that could not be opened or read
	Err  error  // Cause reported by the volume or the pool
}

// RunSummary represents the aggregate result of one traversal
type RunSummary struct {
	RunID       string           // Identifier shared with log records
	Root        string           // Root path the traversal started from
	Directories int64            // Directories expanded (including failed ones)
	Files       int64            // Regular files emitted to the sink
	Failed      int              // Number of failed subtrees
	Failures    []SubtreeFailure // Details of failed subtrees
	Duration    time.Duration    // Wall time of the traversal
	Cancelled   bool             // True when the run stopped before quiescence
}
