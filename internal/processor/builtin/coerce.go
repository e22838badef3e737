package builtin

import (
	"math"
	"strconv"
	"strings"

	"tsingest/internal/config"
	"tsingest/internal/processor"
	"tsingest/pkg/records"
)

const (
	CoerceKind  = "coerce"
	CoerceToKey = "to"
)

// Coerce converts field values to a target kind: int, float, string or bool.
// Strings are parsed; numbers and booleans convert directly. Arrays, objects
// and unparseable strings are value-type errors.
type Coerce struct {
	fieldStage
	To records.Kind
}

func (c Coerce) Exec(v records.Value) (records.Value, error) {
	return c.each(v, func(f processor.Field, in records.Value) (records.Value, error) {
		out, ok := coerce(in, c.To)
		if !ok {
			return nil, processor.ValueTypeError(CoerceKind, f.Input, "value convertible to "+c.To.String(), in)
		}
		return out, nil
	})
}

func coerce(v records.Value, to records.Kind) (records.Value, bool) {
	switch to {
	case records.KindInt:
		switch x := v.(type) {
		case records.Int:
			return x, true
		case records.Float:
			if !fitsInt64(float64(x)) {
				return nil, false
			}
			return records.Int(int64(x)), true
		case records.Bool:
			if x {
				return records.Int(1), true
			}
			return records.Int(0), true
		case records.String:
			s := strings.TrimSpace(string(x))
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return records.Int(i), true
			}
			if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == math.Trunc(fl) && fitsInt64(fl) {
				return records.Int(int64(fl)), true
			}
		}
	case records.KindFloat:
		switch x := v.(type) {
		case records.Float:
			return x, true
		case records.Int:
			return records.Float(float64(x)), true
		case records.Bool:
			if x {
				return records.Float(1), true
			}
			return records.Float(0), true
		case records.String:
			if fl, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64); err == nil {
				return records.Float(fl), true
			}
		}
	case records.KindBool:
		switch x := v.(type) {
		case records.Bool:
			return x, true
		case records.Int:
			return records.Bool(x != 0), true
		case records.Float:
			return records.Bool(x != 0), true
		case records.String:
			if b, err := strconv.ParseBool(strings.TrimSpace(string(x))); err == nil {
				return records.Bool(b), true
			}
		}
	case records.KindString:
		if s, ok := records.Scalar(v); ok {
			return records.String(s), true
		}
	}
	return nil, false
}

// fitsInt64 reports whether f truncates to a value inside the int64 range.
// NaN fails both comparisons.
func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

func parseCoerceTarget(s string) (records.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return records.KindInt, true
	case "float", "double":
		return records.KindFloat, true
	case "string":
		return records.KindString, true
	case "bool", "boolean":
		return records.KindBool, true
	}
	return 0, false
}

func newCoerce(opts config.Options) (processor.Processor, error) {
	base, err := parseFieldStage(CoerceKind, opts)
	if err != nil {
		return nil, err
	}
	raw := opts.String(CoerceToKey, "")
	to, ok := parseCoerceTarget(raw)
	if !ok {
		return nil, processor.ConfigError(CoerceKind, CoerceToKey, "unknown target %q, expect int, float, string or bool", raw)
	}
	return Coerce{fieldStage: base, To: to}, nil
}

func init() {
	processor.Register(CoerceKind, newCoerce)
}
