package core

import "errors"

// Ingestion error taxonomy. Components wrap these with fmt.Errorf("...: %w")
// so callers can classify failures with errors.Is.
var (
	// ErrInvalidConfiguration indicates bad chunking or pipeline parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrExtractionFailed indicates a source could not be read or converted to text.
	// It is terminal for that document only.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrInputTooLarge indicates a single text exceeds the embedding model's input limit.
	ErrInputTooLarge = errors.New("input too large")

	// ErrEmbeddingUnavailable indicates an embedding batch failed after exhausting retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexProvision indicates the target index could not be created or is incompatible.
	// It is job-fatal.
	ErrIndexProvision = errors.New("index provision error")

	// ErrSchemaMismatch indicates an existing index has an incompatible schema.
	ErrSchemaMismatch = errors.New("index schema mismatch")

	// ErrIndexNotFound is returned by index services when the named index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrBatchWriteFailed indicates a record (or a whole batch) was not written to the index.
	ErrBatchWriteFailed = errors.New("batch write failed")

	// ErrObjectNotFound is returned by object stores when a staged file is gone.
	ErrObjectNotFound = errors.New("object not found")
)
