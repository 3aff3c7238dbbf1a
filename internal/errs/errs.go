// Package errs defines the error kinds shared across the learning pipeline
// (spec §7) so every component can classify failures the same way:
// hot-path callers degrade on EnricherUnavailable/WorkerUnreachable, the
// Store maps backing-medium failures to StoreIOError, and so on.
package errs

import "errors"

var (
	// ErrStoreIO indicates a backing-medium failure in the Store.
	ErrStoreIO = errors.New("store: backing medium failure")
	// ErrNotFound indicates a missing entity; callers should treat it as
	// "no work to do", not as a fatal condition.
	ErrNotFound = errors.New("store: not found")
	// ErrSchemaValidation indicates an Enricher response failed schema
	// validation.
	ErrSchemaValidation = errors.New("enricher: schema validation failed")
	// ErrEnricherUnavailable indicates the Enricher collaborator could not
	// be reached or timed out.
	ErrEnricherUnavailable = errors.New("enricher: unavailable")
	// ErrWorkerUnreachable indicates the background Worker could not
	// accept a task within its enqueue timeout.
	ErrWorkerUnreachable = errors.New("worker: unreachable")
	// ErrArtifactWrite indicates a Rule/Skill artifact failed to publish.
	ErrArtifactWrite = errors.New("artifact: write failed")
)
