// Package errors defines the sentinel error kinds shared across the
// indexing and query pipelines and maps them to process exit codes,
// mirroring the way an HTTP service maps sentinel errors to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfig marks invalid CLI flags, a missing required path, or a
	// non-positive memory budget. Reported at startup, before any disk I/O.
	ErrConfig = errors.New("configuration error")
	// ErrIO marks corpus read failures, partial-index write failures, or
	// final-index write failures.
	ErrIO = errors.New("i/o error")
	// ErrMalformedRecord marks a corpus record missing required fields. It
	// is only ever used as a counted, non-fatal marker — corpusread skips
	// and counts these, it never returns this error up the call stack.
	ErrMalformedRecord = errors.New("malformed corpus record")
	// ErrBudgetOverflow marks the internal-bug case where a worker's memory
	// estimate exceeds its budget even immediately after a flush. ExitCode
	// maps it to ExitBudgetOverflow; the worker does not compare its
	// estimate against the budget after a flush, and no code in the
	// indexing pipeline returns this error.
	ErrBudgetOverflow = errors.New("memory budget overflow")

	// Retained from the original service surface; HTTPStatusCode maps them
	// to HTTP statuses, though no handler in this repository returns them.
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentExists      = errors.New("document already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

// Process exit codes for the batch CLIs (cmd/indexer, cmd/processor).
const (
	ExitOK             = 0
	ExitIOError        = 1
	ExitConfigError    = 2
	ExitBudgetOverflow = 70 // matches sysexits.h EX_SOFTWARE, an internal bug
)

// AppError wraps a sentinel error with a human-readable message and both an
// HTTP status code (for -serve mode) and a process exit code (for the
// batch CLIs).
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	ExitCode   int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps sentinel with a message and the standard status/exit codes
// derived from the sentinel's kind.
func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: httpStatusForSentinel(sentinel),
		ExitCode:   exitCodeForSentinel(sentinel),
	}
}

// Newf is New with a formatted message.
func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

// ExitCode returns the process exit code for err: 0 if err is nil, the
// AppError's own code if err wraps one, or a code derived from whichever
// sentinel err wraps.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return exitCodeForSentinel(err)
}

func exitCodeForSentinel(err error) int {
	switch {
	case errors.Is(err, ErrConfig):
		return ExitConfigError
	case errors.Is(err, ErrBudgetOverflow):
		return ExitBudgetOverflow
	case errors.Is(err, ErrIO):
		return ExitIOError
	default:
		return ExitIOError
	}
}

// HTTPStatusCode returns the HTTP status code for err. No handler in this
// repository calls it.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return httpStatusForSentinel(err)
}

func httpStatusForSentinel(err error) int {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentExists), errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
