package processor

import (
	"errors"
	"fmt"

	"tsingest/pkg/records"
)

// Error classes. Every error produced by a stage wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrConfig marks malformed stage configuration. Fatal at build time.
	ErrConfig = errors.New("processor configuration error")
	// ErrValueType marks a value shape the stage cannot operate on. Fatal for
	// the record only.
	ErrValueType = errors.New("processor value type error")
	// ErrMissingField marks an absent input key. Swallowed when the stage
	// declares IgnoreMissing.
	ErrMissingField = errors.New("processor missing field")
)

// Error carries the stage kind and the offending field alongside the class.
type Error struct {
	Kind  string // stage kind, e.g. "select"
	Field string // offending key or option, may be empty
	Err   error  // one of ErrConfig, ErrValueType, ErrMissingField
	Msg   string
}

func (e *Error) Error() string {
	var msg string
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s field=%q", e.Err, e.Kind, e.Field)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Err, e.Kind)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func configErr(kind, field, format string, args ...any) error {
	return &Error{Kind: kind, Field: field, Err: ErrConfig, Msg: fmt.Sprintf(format, args...)}
}

// ConfigError builds an ErrConfig error for stage implementations.
func ConfigError(kind, field, format string, args ...any) error {
	return configErr(kind, field, format, args...)
}

// ValueTypeError builds an ErrValueType error reporting the kind of value
// that was received.
func ValueTypeError(kind, field string, want string, got records.Value) error {
	return &Error{
		Kind:  kind,
		Field: field,
		Err:   ErrValueType,
		Msg:   fmt.Sprintf("expect %s, got %s", want, records.KindOf(got)),
	}
}

// MissingFieldError builds an ErrMissingField error.
func MissingFieldError(kind, field string) error {
	return &Error{Kind: kind, Field: field, Err: ErrMissingField}
}

// StageError locates a failure inside a chain.
type StageError struct {
	Index int
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("processor[%d] %s: %v", e.Index, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsMissingField reports whether err is (or wraps) a missing-field condition.
func IsMissingField(err error) bool { return errors.Is(err, ErrMissingField) }
