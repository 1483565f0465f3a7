package engine

import (
	"errors"
	"fmt"
)

// ExecutionError represents an error detected while executing a plan.
//
// Execution errors include:
//   - Invalid plan: structural validation failed
//   - Null conversion: a null was converted to a non-nullable type
//   - Unsupported expression: the evaluator cannot handle a node
//   - Misaligned children: child rows were left over after the last parent
//
// Rewrite invariant violations are reported as *rewrite.InvariantError,
// wrapped, not as ExecutionError.
type ExecutionError struct {
	// Code identifies the error category.
	Code ExecutionErrorCode

	// Message is a human-readable description.
	Message string

	// PassID identifies the affected execution.
	PassID string

	// Details contains additional context.
	Details map[string]string
}

// ExecutionErrorCode categorizes execution errors.
type ExecutionErrorCode string

const (
	// ErrCodeInvalidPlan indicates the plan failed structural validation.
	ErrCodeInvalidPlan ExecutionErrorCode = "INVALID_PLAN"

	// ErrCodeNullConversion indicates a null value was converted to a
	// non-nullable scalar type.
	ErrCodeNullConversion ExecutionErrorCode = "NULL_CONVERSION"

	// ErrCodeUnsupportedExpr indicates an expression the evaluator cannot
	// handle at that position.
	ErrCodeUnsupportedExpr ExecutionErrorCode = "UNSUPPORTED_EXPRESSION"

	// ErrCodeMisalignedChildren indicates child rows remained buffered
	// after every parent row was evaluated: parent and child orderings
	// disagreed.
	ErrCodeMisalignedChildren ExecutionErrorCode = "MISALIGNED_CHILDREN"
)

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.PassID != "" {
		return fmt.Sprintf("%s: %s (pass=%s)", e.Code, e.Message, e.PassID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsExecutionError returns true if err is, or wraps, an ExecutionError
// with the given code.
func IsExecutionError(err error, code ExecutionErrorCode) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsNullConversionError returns true if err is a null conversion error.
func IsNullConversionError(err error) bool {
	return IsExecutionError(err, ErrCodeNullConversion)
}

// NewInvalidPlanError creates an ExecutionError listing validation problems.
func NewInvalidPlanError(problems []string) *ExecutionError {
	details := make(map[string]string, len(problems))
	for i, p := range problems {
		details[fmt.Sprintf("problem_%d", i)] = p
	}
	msg := "plan failed validation"
	if len(problems) > 0 {
		msg = fmt.Sprintf("plan failed validation: %s", problems[0])
	}
	return &ExecutionError{
		Code:    ErrCodeInvalidPlan,
		Message: msg,
		Details: details,
	}
}

// NewNullConversionError creates an ExecutionError for a null converted to
// the non-nullable type named by to.
func NewNullConversionError(to string) *ExecutionError {
	return &ExecutionError{
		Code:    ErrCodeNullConversion,
		Message: fmt.Sprintf("cannot convert null to %s", to),
		Details: map[string]string{"type": to},
	}
}

// NewUnsupportedExprError creates an ExecutionError for an expression node
// the evaluator cannot handle.
func NewUnsupportedExprError(node, reason string) *ExecutionError {
	return &ExecutionError{
		Code:    ErrCodeUnsupportedExpr,
		Message: fmt.Sprintf("%s: %s", node, reason),
		Details: map[string]string{"node": node},
	}
}

// NewMisalignedChildrenError creates an ExecutionError for child rows left
// over after execution.
func NewMisalignedChildrenError(streams int) *ExecutionError {
	return &ExecutionError{
		Code:    ErrCodeMisalignedChildren,
		Message: fmt.Sprintf("%d child sequence(s) still hold unconsumed rows", streams),
		Details: map[string]string{"streams": fmt.Sprintf("%d", streams)},
	}
}
