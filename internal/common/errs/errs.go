// Package errs defines the error kinds shared by the sync engine and its API.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers can decide how to react to it.
type Kind string

const (
	// IncompleteDocument: local data cannot be serialized (e.g. no primary key).
	IncompleteDocument Kind = "INCOMPLETE_DOCUMENT"
	// NoIndexConfigured: no enabled definition matches the entity type and scope.
	NoIndexConfigured Kind = "NO_INDEX_CONFIGURED"
	// RemoteUnavailable: network, timeout or authentication failure.
	RemoteUnavailable Kind = "REMOTE_UNAVAILABLE"
	// RemoteRejected: the remote validated and refused the request.
	RemoteRejected Kind = "REMOTE_REJECTED"
	NotFound       Kind = "NOT_FOUND"
	Invalid        Kind = "INVALID_INPUT"
	Conflict       Kind = "CONFLICT"
)

// Error carries a Kind plus the diagnostic detail of a failure.
type Error struct {
	Kind    Kind
	Message string
	// Status and Body describe the remote response for RemoteRejected errors.
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Rejected creates a RemoteRejected error carrying the raw response body.
func Rejected(status int, body string) *Error {
	return &Error{
		Kind:    RemoteRejected,
		Message: fmt.Sprintf("remote answered with status %d", status),
		Status:  status,
		Body:    body,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RemoteStatus returns the remote status code of a RemoteRejected error, or 0.
func RemoteStatus(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == RemoteRejected {
		return e.Status
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound, NoIndexConfigured:
		return http.StatusNotFound
	case Invalid, IncompleteDocument:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case RemoteUnavailable:
		return http.StatusServiceUnavailable
	case RemoteRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
