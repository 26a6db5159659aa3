package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCollectionNotFound signals an unknown collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrInvalidQuery signals a request that cannot be turned into a query descriptor.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidSchema signals a filter that does not match the collection schema.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrRetrieval signals an index-level failure (connection, malformed query, missing index).
	ErrRetrieval = errors.New("retrieval failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingDisabled signals that embeddings are switched off by configuration.
	ErrEmbeddingDisabled = errors.New("embedding disabled")
	// ErrEmptyInput signals empty or whitespace-only embedding input.
	ErrEmptyInput = errors.New("empty input")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// RetrievalError is the hard-failure type of the retrieval path.
// It always matches ErrRetrieval and additionally unwraps to the index cause.
type RetrievalError struct {
	Collection string
	Op         string
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("%s: %s: %v", ErrRetrieval.Error(), e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrRetrieval.Error(), e.Op, e.Collection, e.Err)
}

// Unwrap exposes both the ErrRetrieval sentinel and the underlying cause.
func (e *RetrievalError) Unwrap() []error { return []error{ErrRetrieval, e.Err} }

// NewRetrievalError wraps an index failure for the given collection and operation.
func NewRetrievalError(collection, op string, err error) error {
	return &RetrievalError{Collection: collection, Op: op, Err: err}
}
