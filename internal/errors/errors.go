// Package errors defines the coded error taxonomy shared by the rules engine.
//
// Callers import it under an alias (conventionally skerr) so the standard
// library errors package stays available alongside it.
package errors

import (
	"errors"
	"fmt"
)

// Code categorizes an engine error.
type Code string

const (
	// CodeUnknown indicates an error that carries no engine code.
	CodeUnknown Code = "unknown"

	// CodeAuthoring indicates a defect in an installed rule: a script that
	// does not compile, a duplicate name, or an invalid use-time/control-flag
	// combination. Authoring errors abort the single operation.
	CodeAuthoring Code = "authoring"

	// CodeValidation indicates an ability or modifier validate hook refused
	// the action. Handlers surface it as an unsuccessful outcome.
	CodeValidation Code = "validation"

	// CodeResourceExhausted indicates the owner lacks a turn resource.
	CodeResourceExhausted Code = "resource_exhausted"

	// CodeScriptRuntime indicates a script raised, exceeded its instruction
	// budget, or called a capability it was not granted.
	CodeScriptRuntime Code = "script_runtime"

	// CodeNotFound indicates a named ability, effect or entity is absent.
	CodeNotFound Code = "not_found"

	// CodeAlreadyExists indicates a name collision in an index.
	CodeAlreadyExists Code = "already_exists"

	// CodeInvalidArgument indicates the caller passed an argument the
	// operation cannot accept.
	CodeInvalidArgument Code = "invalid_argument"
)

// Error is an engine error with a code and optional metadata.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Meta    map[string]any
}

// Error returns the message, followed by the cause when one is wrapped.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithMeta attaches a metadata key and returns e for chaining.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a message. An engine error keeps its code; any other
// error is tagged CodeUnknown. Wrap returns nil when err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return &Error{Code: coded.Code, Message: message, Cause: err, Meta: copyMeta(coded.Meta)}
	}
	return &Error{Code: CodeUnknown, Message: message, Cause: err}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps err and forces the resulting code.
func WrapWithCode(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Authoringf creates a CodeAuthoring error.
func Authoringf(format string, args ...any) *Error {
	return Newf(CodeAuthoring, format, args...)
}

// ScriptRuntimef creates a CodeScriptRuntime error.
func ScriptRuntimef(format string, args ...any) *Error {
	return Newf(CodeScriptRuntime, format, args...)
}

// NotFoundf creates a CodeNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// AlreadyExistsf creates a CodeAlreadyExists error.
func AlreadyExistsf(format string, args ...any) *Error {
	return Newf(CodeAlreadyExists, format, args...)
}

// InvalidArgumentf creates a CodeInvalidArgument error.
func InvalidArgumentf(format string, args ...any) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// ResourceExhausted creates a CodeResourceExhausted error naming resource.
func ResourceExhausted(resource string) *Error {
	return Newf(CodeResourceExhausted, "no %s remaining", resource).WithMeta("resource", resource)
}

// GetCode returns the code of the outermost engine error in err's chain.
func GetCode(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

func IsAuthoring(err error) bool         { return Is(err, CodeAuthoring) }
func IsValidation(err error) bool        { return Is(err, CodeValidation) }
func IsResourceExhausted(err error) bool { return Is(err, CodeResourceExhausted) }
func IsScriptRuntime(err error) bool     { return Is(err, CodeScriptRuntime) }
func IsNotFound(err error) bool          { return Is(err, CodeNotFound) }
func IsAlreadyExists(err error) bool     { return Is(err, CodeAlreadyExists) }
func IsInvalidArgument(err error) bool   { return Is(err, CodeInvalidArgument) }

func copyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
