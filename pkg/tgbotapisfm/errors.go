package tgbotapisfm

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeExpiration   = errors.New("state expiration must not be negative")
	ErrNegativeCleanup      = errors.New("cleanup interval must not be negative")
	ErrInvalidToken         = errors.New("bot token is empty")
	ErrTelegramInit         = errors.New("telegram api init failed")
	ErrBotStarted           = errors.New("bot is already started")
	ErrStateNotFound        = errors.New("user state not found")
	ErrInvalidStateType     = errors.New("user state has invalid type")
	ErrStateHandlerNotFound = errors.New("state is not registered")
)

// ValidationError ties one of the errors above to the offending value.
type ValidationError struct {
	Err   error
	Value any
}

func NewValidationError(err error, value any) *ValidationError {
	return &ValidationError{Err: err, Value: value}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v", e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
