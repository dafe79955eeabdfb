package dispatch

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrAssignment          = errors.New("assignment refused")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrOdometerConsistency = errors.New("odometer inconsistent")
	ErrConflict            = errors.New("concurrent modification")
	ErrValidation          = errors.New("invalid input")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidTransition,
	ErrAssignment,
	ErrCapacityExceeded,
	ErrOdometerConsistency,
	ErrConflict,
	ErrValidation,
}

// Error is a refused dispatch operation. Kind is one of the Err* values,
// Err is the underlying store error when there is one.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil when err is not a dispatch error.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func invalidTransitionf(format string, args ...any) error {
	return newError(ErrInvalidTransition, format, args...)
}

func assignmentf(format string, args ...any) error {
	return newError(ErrAssignment, format, args...)
}

func validationf(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}
