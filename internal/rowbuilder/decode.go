package rowbuilder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Label is one (name, value) pair of a series, as raw bytes from the wire.
type Label struct {
	Name  []byte
	Value []byte
}

// Sample is one data point: a millisecond timestamp and a float value.
type Sample struct {
	Timestamp int64
	Value     float64
}

// TimeSeries groups a label set with its samples.
type TimeSeries struct {
	Labels  []Label
	Samples []Sample
}

// ValidationMode governs how label bytes are turned into strings.
type ValidationMode int

const (
	// Strict rejects any label that is not valid UTF-8.
	Strict ValidationMode = iota
	// Lossy replaces each invalid sequence with U+FFFD.
	Lossy
	// Unchecked uses the bytes as-is.
	Unchecked
)

func (m ValidationMode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lossy:
		return "lossy"
	case Unchecked:
		return "unchecked"
	}
	return "ValidationMode(" + strconv.Itoa(int(m)) + ")"
}

// ParseValidationMode parses a mode name case-insensitively. The empty string
// selects Strict.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lossy":
		return Lossy, nil
	case "unchecked":
		return Unchecked, nil
	}
	return Strict, fmt.Errorf("unknown validation mode %q", s)
}

// ErrInvalidUTF8 is wrapped by every strict-mode decode failure.
var ErrInvalidUTF8 = errors.New("invalid utf-8")

// DecodeError reports which label failed to decode.
type DecodeError struct {
	Label string // label name, lossily rendered
	Part  string // "name" or "value"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode label %q %s: %v", e.Label, e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns b into a string under mode.
func (m ValidationMode) Decode(b []byte) (string, error) {
	switch m {
	case Lossy:
		if utf8.Valid(b) {
			return string(b), nil
		}
		out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case Unchecked:
		return string(b), nil
	default:
		if !utf8.Valid(b) {
			return "", ErrInvalidUTF8
		}
		return string(b), nil
	}
}

// decodedLabel is a label after validation.
type decodedLabel struct {
	name  string
	value string
}

// decodeLabels validates every label before the caller mutates anything, so
// a failure leaves no partial state behind.
func decodeLabels(labels []Label, mode ValidationMode, dst []decodedLabel) ([]decodedLabel, error) {
	dst = dst[:0]
	for _, l := range labels {
		name, err := mode.Decode(l.Name)
		if err != nil {
			return dst, &DecodeError{Label: lossyName(l.Name), Part: "name", Err: err}
		}
		value, err := mode.Decode(l.Value)
		if err != nil {
			return dst, &DecodeError{Label: name, Part: "value", Err: err}
		}
		dst = append(dst, decodedLabel{name: name, value: value})
	}
	return dst, nil
}

func lossyName(b []byte) string {
	s, _ := Lossy.Decode(b)
	return s
}
