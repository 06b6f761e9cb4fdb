// Package apperr defines the error kinds shared by the lifecycle core and its transports.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller. Each kind maps to one transport status.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindInvalidAssignee   Kind = "invalid_assignee"
	KindInvalidTransition Kind = "invalid_transition"
	KindAuthentication    Kind = "authentication"
	KindConflict          Kind = "conflict"
)

// Error is a classified, terminal failure of a single operation.
// Current is only set for invalid transitions and holds the status the request is actually in.
type Error struct {
	Kind    Kind
	Message string
	Current string
}

func (e *Error) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s: %s (current status %s)", e.Kind, e.Message, e.Current)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works
// for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidAssignee   = &Error{Kind: KindInvalidAssignee}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrConflict          = &Error{Kind: KindConflict}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error    { return newf(KindValidation, format, args...) }
func Authorization(format string, args ...any) error { return newf(KindAuthorization, format, args...) }
func NotFound(format string, args ...any) error      { return newf(KindNotFound, format, args...) }
func InvalidAssignee(format string, args ...any) error {
	return newf(KindInvalidAssignee, format, args...)
}
func Authentication(format string, args ...any) error {
	return newf(KindAuthentication, format, args...)
}
func Conflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

// InvalidTransition reports a move the state machine rejects from the current status.
func InvalidTransition(current, format string, args ...any) error {
	e := newf(KindInvalidTransition, format, args...)
	e.Current = current
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CurrentOf returns the current status carried by an invalid transition error.
func CurrentOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Current
	}
	return ""
}
