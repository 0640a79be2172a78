package snapshot

import (
	"errors"
	"fmt"
)

// Error kinds. Every failed run returns an *Error whose Kind is one of these,
// so callers can match with errors.Is.
var (
	ErrBrowserLaunch    = errors.New("browser launch failed")
	ErrNavigation       = errors.New("navigation failed")
	ErrSelectorTimeout  = errors.New("selector did not appear")
	ErrReadinessTimeout = errors.New("page did not become ready")
	ErrCapture          = errors.New("element capture failed")
	ErrIO               = errors.New("writing output failed")
)

// Error is a terminal run failure: the kind, the state the run was in when
// it failed, and the underlying cause. Trace holds every state the run went
// through, ending in StateClosed.
type Error struct {
	Kind  error
	State State
	Err   error
	Trace []State
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (in state %s): %v", e.Kind, e.State, e.Err)
	}
	return fmt.Sprintf("%v (in state %s)", e.Kind, e.State)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, state State, err error) *Error {
	return &Error{Kind: kind, State: state, Err: err}
}

// Kind returns the error kind of a run failure, or nil if err is not one.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
