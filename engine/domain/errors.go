package domain

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy.
var (
	// ErrExtractionAmbiguous means no price could be read from a record. The
	// normalizer recovers from it locally with the unconfirmed sentinel.
	ErrExtractionAmbiguous = errors.New("price extraction ambiguous")
	// ErrEmbeddingUnavailable means every embedding provider was tried and failed.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrWriteFailed means the vector index rejected a write or was unreachable.
	ErrWriteFailed = errors.New("index write failed")
	// ErrIdentifierMalformed means a key could not be turned into a stable id.
	ErrIdentifierMalformed = errors.New("identifier malformed")
)

// Sentinel errors for validation failures.
var (
	ErrEmptySlug         = errors.New("empty slug")
	ErrEmptyPriceDisplay = errors.New("empty price display")
	ErrPriceMismatch     = errors.New("price fields disagree")
	ErrEmptyVector       = errors.New("empty vector")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
