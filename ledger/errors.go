/*
errors.go - Error taxonomy for the ledger engine

PURPOSE:
  Every failure leaving this package is an *Error carrying a Kind (which maps
  1:1 to an HTTP status), a stable Code and a human readable Message. The
  boundary layer never parses message text.

KINDS:
  InvalidRequest   400  malformed input
  Unauthenticated  401  caller profile could not be resolved
  Forbidden        403  policy violation (role, ownership, limits)
  NotFound         404  missing resource or empty report
  Conflict         409  job already paid or concurrent write collision
  StorageFailure   500  unexpected persistence error

MATCHING:
  Sentinels such as ErrAlreadyPaid match with errors.Is by Code, so an error
  built with a more specific message still matches its sentinel:

    if errors.Is(err, ledger.ErrConflict) {
        // safe to retry
    }

SEE ALSO:
  - store.go: store-level sentinels (ErrRecordNotFound, ErrWriteConflict)
  - api/handlers.go: Kind to status mapping at the boundary
*/
package ledger

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the boundary layer.
type Kind int

const (
	KindInvalidRequest Kind = iota + 1
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindStorageFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "storage_failure"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code is a stable, machine readable reason.
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeInvalidAmount       Code = "invalid_amount"
	CodeUnauthenticated     Code = "unauthenticated"
	CodeForbidden           Code = "forbidden"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeLimitExceeded       Code = "deposit_limit_exceeded"
	CodeNotFound            Code = "not_found"
	CodeJobNotFound         Code = "job_not_found"
	CodeNoData              Code = "no_data"
	CodeAlreadyPaid         Code = "already_paid"
	CodeConflict            Code = "write_conflict"
	CodeStorageFailure      Code = "storage_failure"
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error is the only error type returned by the engine.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Status returns the HTTP status code for the error.
func (e *Error) Status() int { return e.Kind.Status() }

// =============================================================================
// SENTINELS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidAmount       = newError(KindInvalidRequest, CodeInvalidAmount, "amount must be greater than zero")
	ErrUnauthenticated     = newError(KindUnauthenticated, CodeUnauthenticated, "unknown profile")
	ErrInsufficientBalance = newError(KindForbidden, CodeInsufficientBalance, "insufficient balance")
	ErrLimitExceeded       = newError(KindForbidden, CodeLimitExceeded, "deposit limit exceeded")
	ErrNotFound            = newError(KindNotFound, CodeNotFound, "not found")
	ErrJobNotFound         = newError(KindNotFound, CodeJobNotFound, "job not found")
	ErrNoData              = newError(KindNotFound, CodeNoData, "no paid jobs in range")
	ErrAlreadyPaid         = newError(KindConflict, CodeAlreadyPaid, "job is already paid")
	ErrConflict            = newError(KindConflict, CodeConflict, "concurrent modification, retry the request")
	ErrStorageFailure      = newError(KindStorageFailure, CodeStorageFailure, "storage failure")
)

func newError(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func invalid(msg string) *Error {
	return newError(KindInvalidRequest, CodeInvalidRequest, msg)
}

func forbidden(msg string) *Error {
	return newError(KindForbidden, CodeForbidden, msg)
}

func conflict(err error) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: ErrConflict.Message, Err: err}
}

func storageFailure(err error) *Error {
	return &Error{Kind: KindStorageFailure, Code: CodeStorageFailure, Message: ErrStorageFailure.Message, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

// IsRetryable returns true if the request may succeed when repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
