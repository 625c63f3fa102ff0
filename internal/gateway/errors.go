package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures for the retry and surfacing
// policy: only transient errors are retried, declines go to the user,
// misconfiguration alerts operators.
type ErrorKind int

const (
	// KindInvalidRequest is a caller error. Never retried.
	KindInvalidRequest ErrorKind = iota
	// KindDeclined is a vendor business rejection (insufficient funds,
	// expired or blocked card). Never retried, surfaced to the user.
	KindDeclined
	// KindTransient covers network failures, timeouts and vendor 5xx
	// responses. Retried with exponential backoff.
	KindTransient
	// KindMisconfigured means credentials are missing. Not retried.
	KindMisconfigured
	// KindUnavailable means the circuit breaker is open and the call
	// failed fast without reaching the vendor.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindDeclined:
		return "declined"
	case KindTransient:
		return "transient"
	case KindMisconfigured:
		return "misconfigured"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func NewInvalidRequestError(code, message string) *Error {
	return &Error{Kind: KindInvalidRequest, Code: code, Message: message}
}

func NewDeclinedError(code, message string) *Error {
	return &Error{Kind: KindDeclined, Code: code, Message: message}
}

func NewTransientError(code, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: message, cause: cause}
}

func NewMisconfiguredError(gateway string) *Error {
	return &Error{
		Kind:    KindMisconfigured,
		Code:    "GATEWAY_MISCONFIGURED",
		Message: fmt.Sprintf("%s gateway credentials are not configured", gateway),
	}
}

func NewUnavailableError(gateway string, cause error) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Code:    "GATEWAY_UNAVAILABLE",
		Message: fmt.Sprintf("%s gateway circuit is open, failing fast", gateway),
		cause:   cause,
	}
}

// AsError extracts a gateway error from an error chain.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	if ge, ok := AsError(err); ok {
		return ge.Kind == kind
	}
	return false
}

// IsTransient reports whether the retry policy may re-attempt the call.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}
