package rewrite

import (
	"errors"
	"fmt"
)

// InvariantError reports a plan the rewrite cannot process because an
// upstream builder produced an inconsistent structure. It is a defect, not
// a user error: the compilation is aborted and nothing is retried.
type InvariantError struct {
	// Code identifies the violated precondition.
	Code InvariantCode

	// Message is a human-readable description.
	Message string

	// Collection is the index of the collection being rewritten.
	Collection int

	// Navigation names the navigation being rewritten (e.g. "Blog.Posts").
	Navigation string

	// Details contains additional context.
	Details map[string]string
}

// InvariantCode categorizes invariant violations.
type InvariantCode string

const (
	// ErrCodeMissingCorrelationFilter indicates the child plan does not
	// contain exactly one correlation filter, or the filter's sides do not
	// each read a single row source.
	ErrCodeMissingCorrelationFilter InvariantCode = "MISSING_CORRELATION_FILTER"

	// ErrCodeJoinKeyNotFound indicates no projection column of the cloned
	// parent matches a principal-key property.
	ErrCodeJoinKeyNotFound InvariantCode = "JOIN_KEY_NOT_FOUND"

	// ErrCodeOriginKeyNotFound indicates an origin-key column could not be
	// located in the cloned parent projection.
	ErrCodeOriginKeyNotFound InvariantCode = "ORIGIN_KEY_NOT_FOUND"

	// ErrCodeOriginNotEntity indicates the parent plan's FROM source is not
	// an entity scan, so it has no primary key to correlate on.
	ErrCodeOriginNotEntity InvariantCode = "ORIGIN_NOT_ENTITY"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Navigation != "" {
		return fmt.Sprintf("%s: %s (collection=%d, navigation=%s)", e.Code, e.Message, e.Collection, e.Navigation)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantError returns true if err is, or wraps, an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// InvariantCodeOf returns the code of a wrapped InvariantError, or "".
func InvariantCodeOf(err error) InvariantCode {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// NewJoinKeyNotFoundError creates an InvariantError for a principal-key
// property missing from the cloned parent projection.
func NewJoinKeyNotFoundError(entity, property string) *InvariantError {
	return &InvariantError{
		Code:    ErrCodeJoinKeyNotFound,
		Message: fmt.Sprintf("no projection column for principal key %s.%s", entity, property),
		Details: map[string]string{
			"entity":   entity,
			"property": property,
		},
	}
}

// NewOriginKeyNotFoundError creates an InvariantError for an origin-key
// column that cannot be remapped onto the joined projection.
func NewOriginKeyNotFoundError(property string) *InvariantError {
	return &InvariantError{
		Code:    ErrCodeOriginKeyNotFound,
		Message: fmt.Sprintf("origin key column %s not found in joined projection", property),
		Details: map[string]string{
			"property": property,
		},
	}
}

// NewMissingCorrelationFilterError creates an InvariantError for a child
// plan without a usable correlation filter.
func NewMissingCorrelationFilterError(reason string) *InvariantError {
	return &InvariantError{
		Code:    ErrCodeMissingCorrelationFilter,
		Message: reason,
	}
}
