package builtin

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"tsingest/internal/config"
	"tsingest/internal/processor"
	"tsingest/pkg/records"
)

const (
	LetterKind      = "letter"
	LetterMethodKey = "method"
)

// LetterMethod selects the case transformation.
type LetterMethod string

const (
	LetterUpper   LetterMethod = "upper"
	LetterLower   LetterMethod = "lower"
	LetterCapital LetterMethod = "capital"
)

func (m LetterMethod) apply(s string) string {
	switch m {
	case LetterUpper:
		return strings.ToUpper(s)
	case LetterLower:
		return strings.ToLower(s)
	case LetterCapital:
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return s
		}
		return string(unicode.ToUpper(r)) + s[size:]
	}
	return s
}

// Letter changes the case of string fields.
type Letter struct {
	fieldStage
	Method LetterMethod
}

func (l Letter) Exec(v records.Value) (records.Value, error) {
	return l.each(v, func(f processor.Field, in records.Value) (records.Value, error) {
		s, ok := in.(records.String)
		if !ok {
			return nil, processor.ValueTypeError(LetterKind, f.Input, "string", in)
		}
		return records.String(l.Method.apply(string(s))), nil
	})
}

func newLetter(opts config.Options) (processor.Processor, error) {
	base, err := parseFieldStage(LetterKind, opts)
	if err != nil {
		return nil, err
	}
	method := LetterMethod(strings.ToLower(opts.String(LetterMethodKey, string(LetterLower))))
	switch method {
	case LetterUpper, LetterLower, LetterCapital:
	default:
		return nil, processor.ConfigError(LetterKind, LetterMethodKey, "unknown method %q, expect upper, lower or capital", method)
	}
	return Letter{fieldStage: base, Method: method}, nil
}

func init() {
	processor.Register(LetterKind, newLetter)
}
