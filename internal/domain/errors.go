package domain

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the client core can surface.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthRequired
	KindNetworkUnavailable
	KindUnauthorized
	KindServerRejected
	KindServerFault
	KindMalformed
	KindOperationInProgress
	KindStorage
	KindInvalidInput
	KindForbidden
	KindSessionChanged
)

var kindCodes = map[Kind]string{
	KindUnknown:             "unknown",
	KindAuthRequired:        "auth_required",
	KindNetworkUnavailable:  "network_unavailable",
	KindUnauthorized:        "unauthorized",
	KindServerRejected:      "server_rejected",
	KindServerFault:         "server_fault",
	KindMalformed:           "malformed",
	KindOperationInProgress: "operation_in_progress",
	KindStorage:             "storage_error",
	KindInvalidInput:        "invalid_input",
	KindForbidden:           "forbidden",
	KindSessionChanged:      "session_changed",
}

// String returns the stable code used in logs, metrics and message keys.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindUnknown]
}

// Error is the typed error returned across the client core.
// Message carries text supplied by the server, when there is any.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrUnauthorized)
// holds for every unauthorized response regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrAuthRequired        = &Error{Kind: KindAuthRequired}
	ErrNetworkUnavailable  = &Error{Kind: KindNetworkUnavailable}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrServerRejected      = &Error{Kind: KindServerRejected}
	ErrServerFault         = &Error{Kind: KindServerFault}
	ErrMalformed           = &Error{Kind: KindMalformed}
	ErrOperationInProgress = &Error{Kind: KindOperationInProgress}
	ErrStorage             = &Error{Kind: KindStorage}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrSessionChanged      = &Error{Kind: KindSessionChanged}
)

// NewError builds a typed error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Invalid reports a local validation failure.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps a persistence backend error.
func StorageFailure(err error) *Error {
	return &Error{Kind: KindStorage, Err: err}
}

// KindOf extracts the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ServerMessage returns the server-supplied message carried by err, if any.
func ServerMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// Code returns the stable error code of err, or "" when err is nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).String()
}
