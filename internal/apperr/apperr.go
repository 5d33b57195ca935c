// Package apperr defines the error taxonomy shared by the store, the
// enhancement gateway and the outer surfaces (HTTP, CLI, MCP).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"    // 400
	KindNotFound      Kind = "NOT_FOUND"     // 404
	KindTimeout       Kind = "TIMEOUT"       // 408
	KindCancelled     Kind = "CANCELLED"     // 408
	KindConflict      Kind = "CONFLICT"      // 409
	KindProvider      Kind = "PROVIDER"      // provider status, default 500
	KindPersistence   Kind = "PERSISTENCE"   // 500
	KindConfiguration Kind = "CONFIGURATION" // 500
	KindInternal      Kind = "INTERNAL"      // 500
)

// Error is a structured error carrying its kind, a short client-safe
// message and, for provider failures, the upstream status and whether a
// retry may succeed.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidation reports bad caller input. Never retried.
func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound reports a missing record.
func NewNotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", what, id)}
}

// NewConflict reports an operation refused because of current state.
func NewConflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewProvider reports a failure talking to the generation provider.
// statusCode is 0 for transport-level failures.
func NewProvider(statusCode int, retryable bool, msg string, err error) *Error {
	return &Error{
		Kind:       KindProvider,
		Message:    msg,
		StatusCode: statusCode,
		Retryable:  retryable,
		Err:        err,
	}
}

// NewTimeout reports that the operation exceeded its deadline.
func NewTimeout(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

// NewCancelled reports that the caller abandoned the operation.
func NewCancelled(msg string, err error) *Error {
	return &Error{Kind: KindCancelled, Message: msg, Err: err}
}

// NewPersistence wraps a storage open or transaction failure.
func NewPersistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// NewConfiguration reports a fatal setup problem such as a missing secret.
func NewConfiguration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewInternal wraps an unexpected error.
func NewInternal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindProvider && e.Retryable
}

// HTTPStatus maps err to the status code the HTTP layer responds with.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout, KindCancelled:
		return http.StatusRequestTimeout
	case KindConflict:
		return http.StatusConflict
	case KindProvider:
		if e.StatusCode >= 400 && e.StatusCode <= 599 {
			return e.StatusCode
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to clients. Wrapped causes
// are not included.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "internal error"
	}
	switch e.Kind {
	case KindPersistence:
		return "storage failure: " + e.Message
	case KindInternal, KindConfiguration:
		return "internal error"
	default:
		return e.Message
	}
}
