package builtin

import (
	"tsingest/internal/config"
	"tsingest/internal/processor"
	"tsingest/pkg/records"
)

const RequireKind = "require"

// Require rejects records missing any of the configured fields. A null or
// empty string value counts as missing.
type Require struct {
	fieldStage
}

func (r Require) Exec(v records.Value) (records.Value, error) {
	obj, ok := records.AsObject(v)
	if !ok {
		return nil, processor.ValueTypeError(RequireKind, "", "object", v)
	}
	for _, f := range r.fields {
		val, exists := obj[f.Input]
		if !exists || records.KindOf(val) == records.KindNull || isEmptyString(val) {
			return obj, processor.MissingFieldError(RequireKind, f.Input)
		}
	}
	return obj, nil
}

func newRequire(opts config.Options) (processor.Processor, error) {
	base, err := parseFieldStage(RequireKind, opts)
	if err != nil {
		return nil, err
	}
	return Require{fieldStage: base}, nil
}

func init() {
	processor.Register(RequireKind, newRequire)
}

func isEmptyString(v records.Value) bool {
	s, ok := v.(records.String)
	return ok && s == ""
}
