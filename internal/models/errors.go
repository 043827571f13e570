package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorReason is the machine readable failure class surfaced to clients.
type ErrorReason string

const (
	ReasonInvalidInput      ErrorReason = "invalid_input"
	ReasonMissingDependency ErrorReason = "missing_dependency"
	ReasonNoTablesFound     ErrorReason = "no_tables_found"
	ReasonTimeout           ErrorReason = "timeout"
	ReasonEngineFailure     ErrorReason = "engine_failure"
)

// ErrUnknownKind is wrapped by the error returned for an unregistered kind.
var ErrUnknownKind = errors.New("unknown conversion kind")

// ConversionError is the only error type that leaves the orchestrator.
type ConversionError struct {
	Reason  ErrorReason
	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Message
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func newError(reason ErrorReason, err error, format string, args ...interface{}) *ConversionError {
	return &ConversionError{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// InvalidInput reports a missing file, an unknown kind or a disallowed extension.
func InvalidInput(err error, format string, args ...interface{}) *ConversionError {
	return newError(ReasonInvalidInput, err, format, args...)
}

// MissingDependency reports an absent external binary or runtime. The message
// should tell the operator how to install it.
func MissingDependency(err error, format string, args ...interface{}) *ConversionError {
	return newError(ReasonMissingDependency, err, format, args...)
}

// NoTablesFound reports a PDF without any extractable table.
func NoTablesFound(format string, args ...interface{}) *ConversionError {
	return newError(ReasonNoTablesFound, nil, format, args...)
}

// Timeout reports an isolated conversion that exceeded its budget.
func Timeout(err error, format string, args ...interface{}) *ConversionError {
	return newError(ReasonTimeout, err, format, args...)
}

// EngineFailure wraps an internal failure of a delegated engine.
func EngineFailure(err error, format string, args ...interface{}) *ConversionError {
	return newError(ReasonEngineFailure, err, format, args...)
}

// ReasonOf returns the reason carried by err, or "" if err is not a
// ConversionError.
func ReasonOf(err error) ErrorReason {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason ErrorReason) bool {
	return ReasonOf(err) == reason
}

// Normalize maps any error onto the taxonomy. Errors that already are a
// ConversionError are returned unchanged.
func Normalize(err error) *ConversionError {
	if err == nil {
		return nil
	}
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err, "conversion timed out: %v", err)
	}
	return EngineFailure(err, "conversion failed: %v", err)
}
