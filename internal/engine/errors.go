package engine

import (
	"errors"
	"fmt"
	"time"
)

// RuntimeError represents a failure detected while running a calculator.
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Owner identifies the calculator.
	Owner string

	// Interval is the window start, for interval calculators.
	Interval time.Time

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMissingInput indicates an interval had no usable data.
	// Not fatal: the interval is left unresolved and retried next run.
	ErrCodeMissingInput RuntimeErrorCode = "MISSING_INPUT"

	// ErrCodeIncompleteChainRebuild indicates a chain rebuild failed and
	// was rolled back. The previous chain and outputs are untouched.
	ErrCodeIncompleteChainRebuild RuntimeErrorCode = "INCOMPLETE_CHAIN_REBUILD"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Owner != "" {
		msg += fmt.Sprintf(" (owner=%s", e.Owner)
		if !e.Interval.IsZero() {
			msg += fmt.Sprintf(", interval=%s", e.Interval.Format(time.DateOnly))
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsMissingInput returns true if err reports an interval without data.
// Uses errors.As to handle wrapped errors.
func IsMissingInput(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMissingInput
	}
	return false
}

// IsIncompleteChainRebuild returns true if err reports a failed rebuild.
func IsIncompleteChainRebuild(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeIncompleteChainRebuild
	}
	return false
}

// NewMissingInputError creates a RuntimeError for an interval with no value.
func NewMissingInputError(owner string, interval time.Time, message string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeMissingInput,
		Message:  message,
		Owner:    owner,
		Interval: interval,
	}
}

// NewIncompleteChainRebuildError wraps the cause of a failed rebuild.
func NewIncompleteChainRebuildError(owner string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeIncompleteChainRebuild,
		Message: "chain rebuild rolled back",
		Owner:   owner,
		Err:     cause,
	}
}
