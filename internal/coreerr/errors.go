// Package coreerr implements the unified error taxonomy shared by every
// core component: pool, session, locator, perception, tools, and retry.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/circuit-breaker policy decisions.
type Kind string

const (
	InvalidInput        Kind = "InvalidInput"
	NotFound            Kind = "NotFound"
	Timeout             Kind = "Timeout"
	PreconditionFailed  Kind = "PreconditionFailed"
	NavigationError     Kind = "NavigationError"
	StaleState          Kind = "StaleState"
	ResourceExhausted   Kind = "ResourceExhausted"
	HandleLost          Kind = "HandleLost"
	VerificationFailed  Kind = "VerificationFailed"
	InternalError       Kind = "InternalError"
)

// Retryable reports the default retry policy for a Kind per spec.md §7.
// Callers may still override per-call via ExecutionOptions.retry_count.
func (k Kind) Retryable() bool {
	switch k {
	case Timeout, PreconditionFailed, NavigationError, StaleState, VerificationFailed:
		return true
	case ResourceExhausted, HandleLost:
		return true
	default:
		return false
	}
}

// Recoverable reports whether the retry engine should re-perceive/re-locate
// before retrying, rather than simply repeating the same operation.
func (k Kind) Recoverable() bool {
	switch k {
	case NotFound, PreconditionFailed, StaleState, VerificationFailed:
		return true
	default:
		return false
	}
}

// CoreError is the single error type every core component returns.
// It never wraps raw runtime panics or CDP transport errors directly;
// callers translate those into a Kind at the boundary where they occur.
type CoreError struct {
	Kind          Kind
	Message       string
	Retryable     bool
	Hint          string
	OriginEventID string
	Err           error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

// New builds a CoreError with the Kind's default retryability.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message, Retryable: kind.Retryable()}
}

// Wrap builds a CoreError around an underlying error, preserving its chain.
func Wrap(kind Kind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Retryable: kind.Retryable(), Err: err}
}

// WithHint attaches caller guidance (e.g. "retry with a fresh handle").
func (e *CoreError) WithHint(hint string) *CoreError {
	e.Hint = hint
	return e
}

// WithOrigin stamps the event id that triggered this error, when known.
func (e *CoreError) WithOrigin(id string) *CoreError {
	e.OriginEventID = id
	return e
}

// As extracts a *CoreError from an error chain, defaulting to InternalError
// for errors that never passed through this package's constructors.
func As(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return &CoreError{Kind: InternalError, Message: err.Error(), Err: err}
}
