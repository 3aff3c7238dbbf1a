package storage

import "engram/internal/errs"

// Re-exported for call-site brevity within this package; see internal/errs
// for the canonical definitions shared across the pipeline.
var (
	ErrStoreIO  = errs.ErrStoreIO
	ErrNotFound = errs.ErrNotFound
)
