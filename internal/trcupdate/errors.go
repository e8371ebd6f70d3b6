package trcupdate

import "errors"

// Sentinel errors for the update planner.
var (
	// ErrUnknownIterationPath indicates a rule names a test or iteration
	// that does not exist in the database — a hard error raised before any
	// commit happens (SPEC_FULL.md §4.H Failure).
	ErrUnknownIterationPath = errors.New("trcupdate: rule references unknown iteration path")

	// ErrNoLogs indicates a log group was given with no log paths.
	ErrNoLogs = errors.New("trcupdate: log group has no logs")
)
