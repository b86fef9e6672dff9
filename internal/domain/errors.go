package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("authentication failed")
	ErrPermission = errors.New("permission denied")
	ErrNetwork    = errors.New("network error")
)

// Error carries one of the kinds above together with a human readable message
// and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	} else {
		msg = e.Kind.Error() + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) error {
	return NewError(ErrValidation, nil, format, args...)
}

func Conflict(format string, args ...any) error {
	return NewError(ErrConflict, nil, format, args...)
}

func NotFound(format string, args ...any) error {
	return NewError(ErrNotFound, nil, format, args...)
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrAuth, ErrPermission, ErrNetwork} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
