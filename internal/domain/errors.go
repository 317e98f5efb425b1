package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidImage signals image bytes that could not be decoded.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidInput signals a malformed or missing request field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrVectorDimMismatch signals a vector dimension mismatch from the embedding provider.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrInconsistentState signals a detected orphan between the metadata and
	// vector stores. Raised by maintenance tooling only; the read path filters
	// orphans silently.
	ErrInconsistentState = errors.New("inconsistent state between stores")
)

// Store names used in UpstreamError and ingestion stages.
const (
	StoreVector   = "vector"
	StoreMetadata = "metadata"
	StoreObject   = "object-storage"
	StoreEmbedder = "embedder"
)

// UpstreamError wraps a failure from an external store or provider with the
// store name, so callers can tell which dependency misbehaved and retry.
type UpstreamError struct {
	Store string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Store, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError wraps err with the originating store name.
func NewUpstreamError(store string, err error) error {
	return &UpstreamError{Store: store, Err: err}
}

// PartialIngestError reports an ingestion that wrote metadata but failed a
// later stage. It carries the already-assigned image ID so the caller can
// retry just the missing write instead of re-ingesting under a fresh ID.
type PartialIngestError struct {
	ID    string
	Stage string
	Err   error
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("partial ingest of %s: stage %s: %v", e.ID, e.Stage, e.Err)
}

func (e *PartialIngestError) Unwrap() error { return e.Err }

// PartialDeleteError reports a delete that failed on one or both stores.
// A nil side succeeded; the caller retries only the failed side.
type PartialDeleteError struct {
	ID          string
	MetadataErr error
	VectorErr   error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("partial delete of %s: metadata=%v vector=%v", e.ID, e.MetadataErr, e.VectorErr)
}

func (e *PartialDeleteError) Unwrap() error {
	if e.MetadataErr != nil {
		return e.MetadataErr
	}
	return e.VectorErr
}
