package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig   = errors.New("invalid recording config")
	ErrAlreadyRunning  = errors.New("recording session already running")
	ErrNotRunning      = errors.New("no recording session running")
	ErrConnect         = errors.New("broker connect failed")
	ErrConnectionLost  = errors.New("broker connection lost")
	ErrPublish         = errors.New("broker publish failed")
	ErrSubscribe       = errors.New("broker subscribe failed")
	ErrMergeDecode     = errors.New("malformed broker message")
	ErrPersistence     = errors.New("machine update failed")
	ErrMachineNotFound = errors.New("machine not found")
)

// SessionError tags an underlying error with one of the kinds above.
// errors.Is matches both the kind and the cause.
type SessionError struct {
	Kind error
	Err  error
	At   time.Time
}

func NewSessionError(kind error, err error) *SessionError {
	return &SessionError{
		Kind: kind,
		Err:  err,
		At:   time.Now(),
	}
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
