package builtin

import (
	"tsingest/internal/config"
	"tsingest/internal/processor"
	"tsingest/pkg/records"
)

// fieldStage holds what every per-field stage reads from its options.
type fieldStage struct {
	kind          string
	fields        processor.Fields
	ignoreMissing bool
}

func parseFieldStage(kind string, opts config.Options) (fieldStage, error) {
	fields, err := processor.ParseFields(kind, opts)
	if err != nil {
		return fieldStage{}, err
	}
	if len(fields) == 0 {
		return fieldStage{}, processor.ConfigError(kind, processor.FieldsKey, "field or fields is required")
	}
	ignore, err := processor.ParseIgnoreMissing(kind, opts)
	if err != nil {
		return fieldStage{}, err
	}
	return fieldStage{kind: kind, fields: fields, ignoreMissing: ignore}, nil
}

func (s fieldStage) Kind() string        { return s.kind }
func (s fieldStage) IgnoreMissing() bool { return s.ignoreMissing }

// each calls fn for every configured field present in v and writes the result
// to the field's rendered name. Absent fields are skipped when ignoreMissing
// is set and reported otherwise; null values count as absent.
func (s fieldStage) each(v records.Value, fn func(f processor.Field, in records.Value) (records.Value, error)) (records.Value, error) {
	obj, ok := records.AsObject(v)
	if !ok {
		return nil, processor.ValueTypeError(s.kind, "", "object", v)
	}
	for _, f := range s.fields {
		in, present := obj[f.Input]
		if !present || records.KindOf(in) == records.KindNull {
			if s.ignoreMissing {
				continue
			}
			return obj, processor.MissingFieldError(s.kind, f.Input)
		}
		out, err := fn(f, in)
		if err != nil {
			return nil, err
		}
		obj[f.Rendered()] = out
	}
	return obj, nil
}
