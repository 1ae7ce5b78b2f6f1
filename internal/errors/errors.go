// Package errors defines the runtime's error taxonomy and fatal/recoverable
// classification, per the error handling design: format, bounds, type,
// lookup, misuse, and external error kinds.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a runtime error. See spec §7.
type Kind string

const (
	KindFormat   Kind = "format"   // malformed story image, fatal at load
	KindBounds   Kind = "bounds"   // stack/stream/callstack capacity exceeded
	KindType     Kind = "type"     // operator applied to incompatible operands
	KindLookup   Kind = "lookup"   // unknown external function / variable
	KindMisuse   Kind = "misuse"   // save-while-saved, restore-without-save, etc
	KindExternal Kind = "external" // host-bound function signalled failure
)

// InkError is the runtime's single error type. Every constructor below wraps
// a cause built with pkg/errors, which records a stack trace at the point of
// failure; recoverable errors (unknown variable read, missing observer
// target) carry one too, and Fatal tells them apart.
type InkError struct {
	Kind  Kind
	Msg   string
	Fatal bool
	cause error
}

func (e *InkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *InkError) Unwrap() error { return e.cause }

// Is reports whether err is an *InkError of the given kind.
func Is(err error, kind Kind) bool {
	ie, ok := err.(*InkError)
	return ok && ie.Kind == kind
}

// IsFatal reports whether err, if an *InkError, should stop the runner.
func IsFatal(err error) bool {
	ie, ok := err.(*InkError)
	return ok && ie.Fatal
}

func newFatal(kind Kind, format string, args ...interface{}) *InkError {
	msg := fmt.Sprintf(format, args...)
	return &InkError{Kind: kind, Msg: msg, Fatal: true, cause: errors.New(msg)}
}

// Format reports a malformed story image. Always fatal; raised at load time.
func Format(format string, args ...interface{}) error {
	return newFatal(KindFormat, format, args...)
}

// Bounds reports a capacity overflow (eval stack, output stream, callstack,
// string table, list table). Always fatal.
func Bounds(format string, args ...interface{}) error {
	return newFatal(KindBounds, format, args...)
}

// Type reports an operator applied to incompatible operand types. Always
// fatal — the executioner has no sensible value to push and keep going.
func Type(format string, args ...interface{}) error {
	return newFatal(KindType, format, args...)
}

// Misuse reports a stream/snapshot protocol violation (double save, restore
// without save, read below save point). Always fatal.
func Misuse(format string, args ...interface{}) error {
	return newFatal(KindMisuse, format, args...)
}

// External reports a host-bound external function signalling failure.
// Fatal unless the binding opted into recovery.
func External(recoverable bool, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return &InkError{Kind: KindExternal, Msg: msg, Fatal: !recoverable, cause: errors.New(msg)}
}

// Lookup reports an unknown name. Callers decide fatality: an unknown
// variable read or unresolved observer target is recoverable (returns a
// sentinel), an unknown external function call is fatal.
func Lookup(fatal bool, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return &InkError{Kind: KindLookup, Msg: msg, Fatal: fatal, cause: errors.New(msg)}
}

// WithStack annotates err with a stack trace captured here, for surfacing
// through the host's dedicated error channel (§6).
func WithStack(err error) error {
	return errors.WithStack(err)
}
