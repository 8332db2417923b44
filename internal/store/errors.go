package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stoats/internal/ir"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeDuplicateMeasurement indicates a journal row already exists for
	// (statistic_name, source, time) and overwrite was not requested.
	ErrCodeDuplicateMeasurement ErrorCode = "DUPLICATE_MEASUREMENT"

	// ErrCodeProvenanceViolation indicates a broken provenance invariant:
	// a composite whose edge count differs from n_components, or a
	// composite built from inputs that do not exist. Always fatal for the
	// enclosing transaction.
	ErrCodeProvenanceViolation ErrorCode = "PROVENANCE_INVARIANT_VIOLATION"

	// ErrCodeNotFound indicates a referenced entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeNameConflict indicates a statistic name re-registered with a
	// different journal type.
	ErrCodeNameConflict ErrorCode = "NAME_CONFLICT"
)

// Error is returned for integrity failures detected by the store.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Sources lists the sources involved, when known.
	Sources []ir.SourceID
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Sources) > 0 {
		ids := make([]string, len(e.Sources))
		for i, id := range e.Sources {
			ids[i] = fmt.Sprintf("%d", id)
		}
		return fmt.Sprintf("%s: %s (sources=%s)", e.Code, e.Message, strings.Join(ids, ","))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDuplicate returns true if err is a duplicate measurement error.
// Uses errors.As to handle wrapped errors.
func IsDuplicate(err error) bool {
	return hasCode(err, ErrCodeDuplicateMeasurement)
}

// IsProvenanceViolation returns true if err is a provenance invariant violation.
func IsProvenanceViolation(err error) bool {
	return hasCode(err, ErrCodeProvenanceViolation)
}

// IsNotFound returns true if err reports a missing entity.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newDuplicateError(name string, source ir.SourceID, at int64) *Error {
	return &Error{
		Code:    ErrCodeDuplicateMeasurement,
		Message: fmt.Sprintf("%s already recorded at %d", name, at),
		Sources: []ir.SourceID{source},
	}
}

func newProvenanceError(message string, sources ...ir.SourceID) *Error {
	return &Error{
		Code:    ErrCodeProvenanceViolation,
		Message: message,
		Sources: sources,
	}
}

func newNotFoundError(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message}
}
