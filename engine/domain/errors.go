package domain

import (
	"errors"
	"fmt"
)

// Retrieval failure taxonomy. Sub-retrieval failures are absorbed by the
// orchestrator and never cross the caller-facing boundary.
var (
	// ErrInvalidQueryShape marks a traversal request whose relationship path is
	// not defined in the schema. Treated as a planner bug: logged, dropped.
	ErrInvalidQueryShape = errors.New("invalid query shape")
	// ErrRetrievalTimeout marks an external call that exceeded its deadline.
	ErrRetrievalTimeout = errors.New("retrieval timeout")
	// ErrEmbeddingFailure marks a failed query embedding; the vector request
	// is skipped, not retried inline.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrModelUnavailable marks a language-model call that failed after
	// exhausting its retry budget.
	ErrModelUnavailable = errors.New("language model unavailable")
)

// Validation sentinels for inbound messages.
var (
	ErrInvalidMessage   = errors.New("invalid message")
	ErrMessageTooShort  = errors.New("message too short")
	ErrMessageTooLong   = errors.New("message too long")
	ErrMessageInjection = errors.New("message contains suspicious content")
)

// QueryShapeError carries the offending hop of an invalid traversal path.
type QueryShapeError struct {
	Start    EntityType
	RelType  string
	Terminal EntityType
}

func (e *QueryShapeError) Error() string {
	return fmt.Sprintf("%s: no relationship %s between %s and %s",
		ErrInvalidQueryShape, e.RelType, e.Start, e.Terminal)
}

func (e *QueryShapeError) Unwrap() error { return ErrInvalidQueryShape }

// ValidationError wraps a sentinel with field context.
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
