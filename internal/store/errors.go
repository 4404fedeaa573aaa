package store

import "errors"

// Sentinel errors returned by the store layer. Callers branch on these with
// errors.Is; conflicts are recoverable by a later sweep and are never logged
// as failures.
var (
	// ErrConflict means a conditional claim lost a race: another worker
	// already holds the row.
	ErrConflict = errors.New("store: claim conflict")

	// ErrNotFound means the referenced record does not exist or is not
	// visible to the calling tenant.
	ErrNotFound = errors.New("store: not found")
)
