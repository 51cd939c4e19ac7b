// Package errors augments the standard errors with sentinel values
// that may wrap a cause without losing their identity.
//
// A sentinel is declared once with New and returned wrapped:
//
//	var ErrNotExists = errors.New("node doesn't exist")
//	...
//	return ErrNotExists.Wrap(err)
//
// errors.Is(returned, ErrNotExists) holds, and so does errors.Is(returned, err).
package errors

import (
	stderr "errors"
	"fmt"

	"go.uber.org/multierr"
)

var _ error = New("")

// New sentinel Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error is a message that may carry a nested cause.
//
// Wrapping returns a copy, so that package-level sentinels may be wrapped
// concurrently.
type Error struct {
	msg    string
	err    error
	parent *Error
}

// Error message, followed by the cause if any
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error
func (e *Error) Wrap(err error) *Error {
	root := e
	if e.parent != nil {
		root = e.parent
	}
	return &Error{msg: e.msg, err: err, parent: root}
}

// Wrapf wraps a formatted message as the nested error
func (e *Error) Wrapf(format string, args ...interface{}) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target {
		return true
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.parent != nil && e.parent == t
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// Messages flattens a possibly aggregated error into its messages.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	errs := multierr.Errors(err)
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// Append aggregates errors (a shortcut to multierr.Append)
func Append(left, right error) error {
	return multierr.Append(left, right)
}
