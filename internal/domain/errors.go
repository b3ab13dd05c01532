package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUnsupportedFormat signals a file format no parser accepts.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrParserUnavailable signals a missing parser dependency; a deployment
	// problem, not a data problem.
	ErrParserUnavailable = errors.New("parser unavailable")
	// ErrInvalidChunkConfig signals an inconsistent chunking configuration.
	ErrInvalidChunkConfig = errors.New("invalid chunking config")
	// ErrVectorDimMismatch signals an embedding of the wrong dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidation signals an invalid request.
	ErrValidation = errors.New("validation failed")
)

// DocumentError wraps a failure while parsing or splitting a named document.
type DocumentError struct {
	Name  string // original filename
	Stage string // "detect", "parse", "chunk"
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %q: %s: %v", e.Name, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// EmbeddingError wraps an embedding provider failure. Retryable failures
// (rate limits, transient API errors) may be retried by the generator;
// non-retryable ones (bad key, invalid input) propagate immediately.
type EmbeddingError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// NewEmbeddingError creates an EmbeddingError.
func NewEmbeddingError(provider string, retryable bool, err error) *EmbeddingError {
	return &EmbeddingError{Provider: provider, Retryable: retryable, Err: err}
}

// IsRetryableEmbedding reports whether err is a retryable EmbeddingError.
func IsRetryableEmbedding(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee) && ee.Retryable
}

// VectorStoreError wraps a vector backend failure with the provider and
// operation. Never retried at the store layer.
type VectorStoreError struct {
	Provider string
	Op       string
	Err      error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// NewVectorStoreError creates a VectorStoreError.
func NewVectorStoreError(provider, op string, err error) *VectorStoreError {
	return &VectorStoreError{Provider: provider, Op: op, Err: err}
}

// KnowledgeError is the orchestration-level wrapper: every pipeline failure
// is re-wrapped exactly once at the knowledge service boundary.
type KnowledgeError struct {
	Op         string
	DocumentID string
	Err        error
}

func (e *KnowledgeError) Error() string {
	if e.DocumentID != "" {
		return fmt.Sprintf("knowledge %s (document %s): %v", e.Op, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("knowledge %s: %v", e.Op, e.Err)
}

func (e *KnowledgeError) Unwrap() error { return e.Err }

// NewKnowledgeError creates a KnowledgeError.
func NewKnowledgeError(op, documentID string, err error) *KnowledgeError {
	return &KnowledgeError{Op: op, DocumentID: documentID, Err: err}
}
