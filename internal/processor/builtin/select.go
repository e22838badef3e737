// Package builtin contains the stages shipped with the ingestion pipeline.
// Each stage registers itself with the processor registry from init, so a
// blank import is enough to make every kind available to processor.Build.
package builtin

import (
	"tsingest/internal/config"
	"tsingest/internal/processor"
	"tsingest/pkg/records"
)

const (
	SelectKind    = "select"
	SelectTypeKey = "type"
)

// SelectMode is the selection direction.
type SelectMode int

const (
	SelectInclude SelectMode = iota
	SelectExclude
)

func (m SelectMode) String() string {
	if m == SelectExclude {
		return "exclude"
	}
	return "include"
}

// ParseSelectMode accepts exactly "include" or "exclude".
func ParseSelectMode(s string) (SelectMode, bool) {
	switch s {
	case "include":
		return SelectInclude, true
	case "exclude":
		return SelectExclude, true
	}
	return 0, false
}

// Select keeps or removes a set of keys from an object record.
//
// Include keeps exactly the rendered names of Fields, moving renamed values to
// their output key first. When two fields render to the same name the later
// one wins. Exclude deletes each input key and ignores renames.
type Select struct {
	Fields processor.Fields
	Mode   SelectMode
}

func (Select) Kind() string { return SelectKind }

// IgnoreMissing is always true: an absent field is simply not selected.
func (Select) IgnoreMissing() bool { return true }

func (s Select) Exec(v records.Value) (records.Value, error) {
	obj, ok := records.AsObject(v)
	if !ok {
		return nil, processor.ValueTypeError(SelectKind, "", "object", v)
	}

	switch s.Mode {
	case SelectInclude:
		for _, f := range s.Fields {
			if f.Output == "" {
				continue
			}
			if val, ok := obj[f.Input]; ok {
				delete(obj, f.Input)
				obj[f.Output] = val
			}
		}
		keep := make(map[string]struct{}, len(s.Fields))
		for _, f := range s.Fields {
			keep[f.Rendered()] = struct{}{}
		}
		for k := range obj {
			if _, ok := keep[k]; !ok {
				delete(obj, k)
			}
		}
	case SelectExclude:
		for _, f := range s.Fields {
			delete(obj, f.Input)
		}
	}
	return obj, nil
}

func newSelect(opts config.Options) (processor.Processor, error) {
	fields, err := processor.ParseFields(SelectKind, opts)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, processor.ConfigError(SelectKind, processor.FieldsKey, "field or fields is required")
	}

	mode := SelectInclude
	if raw, ok := opts[SelectTypeKey]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, processor.ConfigError(SelectKind, SelectTypeKey, "must be a string, got %T", raw)
		}
		m, known := ParseSelectMode(s)
		if !known {
			return nil, processor.ConfigError(SelectKind, SelectTypeKey, "unknown select type %q, expect include or exclude", s)
		}
		mode = m
	}
	return Select{Fields: fields, Mode: mode}, nil
}

func init() {
	processor.Register(SelectKind, newSelect)
}
