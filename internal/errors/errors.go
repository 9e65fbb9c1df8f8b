package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is the structured error type for the retrieval core. It carries a
// stable code for logging and for mapping to transport status at the
// boundary.
type Error struct {
	// Code is the unique error code (e.g. "ERR_201_CHUNK_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Data, Collaborator, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, keeping its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound creates a chunk-not-found error.
func NotFound(chunkID string) *Error {
	return New(CodeChunkNotFound, "chunk not found: "+chunkID, nil).
		WithDetail("chunk_id", chunkID)
}

// ProcedureNotFound creates a procedure-not-found error.
func ProcedureNotFound(procedureID string) *Error {
	return New(CodeProcedureNotFound, "procedure not found: "+procedureID, nil).
		WithDetail("procedure_id", procedureID)
}

// NoChannels creates the fatal both-channels-failed error.
func NoChannels(cause error) *Error {
	return New(CodeNoChannels, "no-retrieval-channels", cause)
}

// FromContext maps a context error to Timeout or Cancelled. Returns nil if
// the context has no error.
func FromContext(ctx context.Context) *Error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return New(CodeTimeout, "request deadline exceeded", ctx.Err())
	case context.Canceled:
		return New(CodeCancelled, "request cancelled", ctx.Err())
	default:
		return nil
	}
}

// IsNotFound reports whether err is a chunk or procedure not-found error.
func IsNotFound(err error) bool {
	code := GetCode(err)
	return code == CodeChunkNotFound || code == CodeProcedureNotFound
}

// IsNoChannels reports whether err means every retrieval channel failed.
func IsNoChannels(err error) bool {
	return GetCode(err) == CodeNoChannels
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code, or empty string for foreign errors.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
