// Package errors provides the same API as the popular github.com/pkg/errors package plus the
// standard library Is/As, so callers only ever import this one errors package. Errors raised
// inside the engine are wrapped on the way out so a logged error always carries a stack trace.
package errors

import (
	stderrors "errors" //nolint: depguard

	"github.com/pkg/errors" //nolint: depguard
)

// github.com/pkg/errors api

// New returns an error with the supplied message and a stack trace recorded at the
// point it was called.
func New(message string) error {
	return errors.New(message)
}

// Errorf formats according to a format specifier and returns the string as an error.
// Errorf also records the stack trace at the point it was called.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Wrapf returns an error annotating err with a stack trace at the point Wrapf is called,
// and the format specifier. If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Wrap returns an error annotating err with a stack trace at the point Wrap is called,
// and the supplied message. If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, message)
}

// WithStack annotates err with a stack trace at the point WithStack was called.
// If err is nil, WithStack returns nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return errors.Cause(err)
}

// MaybeAddStack annotates err with a stack trace unless the chain already carries one.
// User facing DatabendErrors are returned as-is since their text is part of the external contract.
func MaybeAddStack(err error) error {
	if err == nil {
		return nil
	}
	var derr DatabendError
	if As(err, &derr) {
		return err
	}
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return errors.WithStack(err)
}

// standard go errors api

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target, and if so, sets
// target to that error value and returns true.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

type stackTracer interface {
	StackTrace() errors.StackTrace
}
