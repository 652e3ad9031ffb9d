package engine

import (
	"errors"
	"fmt"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// DefaultErrorType is the type tag of command errors raised without one.
const DefaultErrorType = "error"

// CommandError is a recoverable, user-visible failure. The engine stages it
// on the context as the sticky error, where "On error" commands can react.
type CommandError struct {
	Type    string
	Message string
	Data    any

	// Context names the script in which the error escaped unhandled.
	Context string
	Err     error
}

// NewCommandError returns a command error of the default type.
func NewCommandError(format string, args ...any) *CommandError {
	return &CommandError{Type: DefaultErrorType, Message: fmt.Sprintf(format, args...)}
}

// TypedError returns a command error with the given type tag and data.
func TypedError(errType string, data any, format string, args ...any) *CommandError {
	return &CommandError{Type: errType, Message: fmt.Sprintf(format, args...), Data: data}
}

func (e *CommandError) Error() string {
	if e.Type == "" || e.Type == DefaultErrorType {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Node returns the error as exposed to scripts through ${error}:
// {type, message, data?}.
func (e *CommandError) Node() *node.Object {
	obj := node.ObjectOf("type", e.Type, "message", e.Message)
	if e.Data != nil {
		obj.Set("data", e.Data)
	}
	return obj
}

// Kind classifies fatal script errors.
type Kind string

const (
	// KindFormat: a command argument is malformed or has the wrong shape.
	KindFormat Kind = "format"
	// KindUnknownCommand: no handler is registered under the command name.
	KindUnknownCommand Kind = "unknown_command"
	// KindUnresolved: a variable reference could not be resolved.
	KindUnresolved Kind = "unresolved"
	// KindAssertion: a test assertion failed.
	KindAssertion Kind = "assertion"
	// KindInternal: a collaborator failed unexpectedly.
	KindInternal Kind = "internal"
)

// Error is a fatal script error. It is never caught by error-handling
// commands and unwinds every nested run up to the invoker.
type Error struct {
	Kind    Kind
	Message string

	// Command is the offending command as a single-key object, attached by
	// the engine when the error passes through the run loop.
	Command *node.Object
	// Context names the enclosing script or file.
	Context string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s (in %s)", msg, e.Context)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// FormatError reports a malformed command argument.
func FormatError(format string, args ...any) *Error {
	return &Error{Kind: KindFormat, Message: fmt.Sprintf(format, args...)}
}

// AssertionError reports a failed test assertion.
func AssertionError(format string, args ...any) *Error {
	return &Error{Kind: KindAssertion, Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps an unexpected collaborator failure.
func InternalError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is a fatal script error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// Exit is the non-local exit signal. It travels up the error return path
// through nested command loops until the nearest script boundary (Run),
// which returns Value as the script result.
type Exit struct {
	Value any
}

func (e *Exit) Error() string {
	return "exit"
}

// IsExit reports whether err carries a non-local exit and returns it.
func IsExit(err error) (*Exit, bool) {
	var ex *Exit
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// AsCommandError returns the command error carried by err, if any.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
