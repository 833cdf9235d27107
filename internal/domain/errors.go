package domain

import "errors"

// Error taxonomy for the ingestion and retrieval pipeline. Stage code wraps
// these sentinels with fmt.Errorf("...: %w", ...) so the worker loop can
// classify failures with errors.Is without parsing messages.
var (
	// ErrUnsupportedType means no extractor handles the file's type.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrExtractionFailed wraps any parse or decode failure inside an extractor.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrNoChunks means extraction succeeded but chunking produced nothing.
	ErrNoChunks = errors.New("no chunks generated")

	// ErrBackendUnavailable means the embedding backend could not be reached.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")

	// ErrBackendMisconfigured means the backend is reachable in principle but
	// unusable as configured, e.g. a missing credential.
	ErrBackendMisconfigured = errors.New("embedding backend misconfigured")

	// ErrModelNotInstalled means a local backend is up but the configured
	// model has not been pulled.
	ErrModelNotInstalled = errors.New("embedding model not installed")

	// ErrAlignment means a chunk/vector count mismatch reached the vector
	// store. This is a programming error, never an external hiccup.
	ErrAlignment = errors.New("chunk/vector count mismatch")

	// ErrQueueUnavailable means the durable store rejected a queue write.
	ErrQueueUnavailable = errors.New("job queue unavailable")

	// ErrStoreUnavailable means the durable store rejected a read or write
	// outside the queue.
	ErrStoreUnavailable = errors.New("durable store unavailable")
)

// IsRetryable reports whether a job that failed with err should be
// rescheduled. Unsupported input, misconfiguration, and alignment faults
// cannot be fixed by retrying; everything else is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrBackendMisconfigured),
		errors.Is(err, ErrModelNotInstalled),
		errors.Is(err, ErrAlignment):
		return false
	}
	return true
}
