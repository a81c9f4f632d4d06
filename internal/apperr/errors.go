package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error category surfaced to API callers.
type Kind string

const (
	AuthenticationRequired  Kind = "authentication_required"
	PermissionDenied        Kind = "permission_denied"
	NotFound                Kind = "not_found"
	InvalidTransition       Kind = "invalid_transition"
	ConflictAlreadyAssigned Kind = "conflict_already_assigned"
	UpstreamUnavailable     Kind = "upstream_unavailable"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from err, defaulting to UpstreamUnavailable for
// anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UpstreamUnavailable
}

// Is lets errors.Is match on kind: apperr.Is(err, apperr.NotFound).
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error kind to a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case AuthenticationRequired:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidTransition:
		return http.StatusUnprocessableEntity
	case ConflictAlreadyAssigned:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
