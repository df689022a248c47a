package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed usage check. Poll outcomes carry these as
// data; nothing in the poll pipeline panics across goroutines.
type ErrorKind int

const (
	// ErrNetwork covers connection-level failures (DNS, refused, reset).
	ErrNetwork ErrorKind = iota
	// ErrTimeout is a request that exceeded the client deadline.
	ErrTimeout
	// ErrInvalidCredential is a 401: key or token invalid or expired.
	ErrInvalidCredential
	// ErrPermissionDenied is a 403.
	ErrPermissionDenied
	// ErrBillingExhausted is a 400 whose body mentions credits or billing.
	ErrBillingExhausted
	// ErrBadRequest is any other 400.
	ErrBadRequest
	// ErrNoUsageHeaders means every attempted endpoint answered without
	// rate-limit headers.
	ErrNoUsageHeaders
	// ErrServer is any 5xx.
	ErrServer
	// ErrUnexpectedStatus is any remaining non-200/429 status.
	ErrUnexpectedStatus
)

// Error is a typed usage-check failure.
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status when applicable, else 0
	Message string // server-provided detail, possibly empty
	cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNetwork:
		return "network error, check your connection"
	case ErrTimeout:
		return "request timed out"
	case ErrInvalidCredential:
		if e.Message != "" {
			return e.Message
		}
		return "credential invalid or expired"
	case ErrPermissionDenied:
		if e.Message != "" {
			return e.Message
		}
		return "credential lacks permission"
	case ErrBillingExhausted:
		return "no API credits, check Plans & Billing"
	case ErrBadRequest:
		if e.Message != "" {
			return "bad request: " + e.Message
		}
		return "bad request"
	case ErrNoUsageHeaders:
		return "API did not return rate-limit headers"
	case ErrServer:
		return fmt.Sprintf("server error (%d)", e.Status)
	default:
		if e.Message != "" {
			return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
		}
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match against a bare &Error{Kind: ...} sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind returns the classification of err, or ok=false when err is not an
// api error.
func Kind(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
