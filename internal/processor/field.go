package processor

import (
	"fmt"
	"strings"

	"tsingest/internal/config"
)

// Option keys shared by every stage.
const (
	FieldKey         = "field"
	FieldsKey        = "fields"
	IgnoreMissingKey = "ignore_missing"
)

// Field addresses one key of a record. Output, when set, renames the value on
// emission; lookups always use Input.
type Field struct {
	Input  string
	Output string
}

// Rendered returns the name the field is emitted under.
func (f Field) Rendered() string {
	if f.Output != "" {
		return f.Output
	}
	return f.Input
}

func (f Field) String() string {
	if f.Output == "" {
		return f.Input
	}
	return f.Input + ", " + f.Output
}

// ParseField parses "input" or "input, output".
func ParseField(s string) (Field, error) {
	parts := strings.Split(s, ",")
	switch len(parts) {
	case 1:
		in := strings.TrimSpace(parts[0])
		if in == "" {
			return Field{}, fmt.Errorf("field name must not be empty")
		}
		return Field{Input: in}, nil
	case 2:
		in, out := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if in == "" {
			return Field{}, fmt.Errorf("field %q: input name must not be empty", s)
		}
		if out == "" {
			return Field{}, fmt.Errorf("field %q: output name must not be empty", s)
		}
		return Field{Input: in, Output: out}, nil
	default:
		return Field{}, fmt.Errorf("field %q: expect \"input\" or \"input, output\"", s)
	}
}

// Fields is an ordered field list. Order matters: when two fields render to
// the same output name, the later one wins.
type Fields []Field

// ParseFields reads the "field" and "fields" keys of a stage's options.
// "fields" wins when both are set. Returns nil when neither is present.
func ParseFields(kind string, opts config.Options) (Fields, error) {
	if raw, ok := opts[FieldsKey]; ok {
		list, ok := raw.([]any)
		if !ok {
			if ss, isStrings := raw.([]string); isStrings {
				list = make([]any, len(ss))
				for i, s := range ss {
					list[i] = s
				}
			} else {
				return nil, configErr(kind, FieldsKey, "%q must be a list of strings", FieldsKey)
			}
		}
		out := make(Fields, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, configErr(kind, FieldsKey, "%s[%d] must be a string, got %T", FieldsKey, i, item)
			}
			f, err := ParseField(s)
			if err != nil {
				return nil, configErr(kind, FieldsKey, "%v", err)
			}
			out = append(out, f)
		}
		return out, nil
	}

	if raw, ok := opts[FieldKey]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, configErr(kind, FieldKey, "%q must be a string, got %T", FieldKey, raw)
		}
		f, err := ParseField(s)
		if err != nil {
			return nil, configErr(kind, FieldKey, "%v", err)
		}
		return Fields{f}, nil
	}

	return nil, nil
}

// ParseIgnoreMissing reads the "ignore_missing" flag.
func ParseIgnoreMissing(kind string, opts config.Options) (bool, error) {
	raw, ok := opts[IgnoreMissingKey]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, configErr(kind, IgnoreMissingKey, "%q must be a boolean, got %T", IgnoreMissingKey, raw)
	}
	return b, nil
}
