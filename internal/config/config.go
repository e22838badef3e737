// Package config defines the configuration model for an ingestion pipeline:
// the job name, how inbound labels are decoded, the ordered processor chain
// and runtime sizing hints.
//
// Pipelines are loaded from JSON or YAML. The processor list follows the
// declarative shape used by pipeline files, one single-key mapping per stage:
//
//	job: prom_remote_write
//	ingest:
//	  validation_mode: strict
//	processors:
//	  - select:
//	      fields: [__name__, host, "region, dc"]
//	      type: include
//	  - letter:
//	      field: host
//	      method: lower
//	runtime:
//	  workers: 4
//
// The long form {"kind": "select", "options": {...}} is accepted as well.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every structural error produced while decoding a
// pipeline file.
var ErrInvalid = errors.New("config: invalid pipeline")

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the pipeline in logs and metrics.
	Job string `json:"job" yaml:"job"`

	// Ingest controls label decoding and default routing.
	Ingest Ingest `json:"ingest" yaml:"ingest"`

	// Processors lists the ordered stages applied to each record. Each stage
	// has a kind and an options bag whose shape is defined by the stage.
	Processors []Transform `json:"processors" yaml:"processors"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Ingest configures how label bytes are decoded and where series without
// routing labels land.
type Ingest struct {
	// ValidationMode is one of "strict" (default), "lossy" or "unchecked".
	ValidationMode string `json:"validation_mode" yaml:"validation_mode"`

	// DefaultSchema and DefaultPhysicalTable apply to series that carry no
	// __database__ / __physical_table__ label. Empty means unset.
	DefaultSchema        string `json:"default_schema" yaml:"default_schema"`
	DefaultPhysicalTable string `json:"default_physical_table" yaml:"default_physical_table"`
}

// RuntimeConfig holds concurrency and pre-sizing hints.
type RuntimeConfig struct {
	// Workers is the number of ingestion cycles run in parallel by replay.
	Workers int `json:"workers" yaml:"workers"`

	// LabelHint and RowHint pre-size newly created table builders.
	LabelHint int `json:"label_hint" yaml:"label_hint"`
	RowHint   int `json:"row_hint" yaml:"row_hint"`
}

// Transform defines a single processor stage.
type Transform struct {
	// Kind selects the stage implementation (e.g. "select", "letter").
	Kind string `json:"kind" yaml:"kind"`

	// Options is the stage's configuration mapping.
	Options Options `json:"options" yaml:"options"`
}

// Load reads a pipeline from path. Files ending in .yaml or .yml are decoded
// as YAML, everything else as JSON.
func Load(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(raw)
	default:
		return ParseJSON(raw)
	}
}

// ParseJSON decodes a JSON pipeline document.
func ParseJSON(raw []byte) (Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode json: %w", err)
	}
	return p, nil
}

// ParseYAML decodes a YAML pipeline document.
func ParseYAML(raw []byte) (Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	return p, nil
}

// UnmarshalJSON accepts both {"select": {...}} and {"kind": "select",
// "options": {...}}.
func (t *Transform) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: processor entry must be an object: %v", ErrInvalid, err)
	}

	if rawKind, ok := m["kind"]; ok {
		var kind string
		if err := json.Unmarshal(rawKind, &kind); err != nil {
			return fmt.Errorf("%w: processor kind must be a string", ErrInvalid)
		}
		var opts Options
		if rawOpts, ok := m["options"]; ok {
			if err := json.Unmarshal(rawOpts, &opts); err != nil {
				return fmt.Errorf("%w: processor %q options: %v", ErrInvalid, kind, err)
			}
		}
		if opts == nil {
			opts = Options{}
		}
		*t = Transform{Kind: kind, Options: opts}
		return nil
	}

	if len(m) != 1 {
		return fmt.Errorf("%w: processor entry must have exactly one key, got %d", ErrInvalid, len(m))
	}
	for kind, rawOpts := range m {
		var opts Options
		if err := json.Unmarshal(rawOpts, &opts); err != nil {
			return fmt.Errorf("%w: processor %q options: %v", ErrInvalid, kind, err)
		}
		*t = Transform{Kind: kind, Options: opts}
	}
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON. Mapping keys anywhere inside a stage
// must be strings.
func (t *Transform) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: processor entry must be a mapping", ErrInvalid, node.Line)
	}

	m, err := yamlMapping(node)
	if err != nil {
		return err
	}

	if kind, ok := m["kind"]; ok {
		s, ok := kind.(string)
		if !ok {
			return fmt.Errorf("%w: line %d: processor kind must be a string", ErrInvalid, node.Line)
		}
		opts := Options{}
		if raw, ok := m["options"]; ok && raw != nil {
			om, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: line %d: processor %q options must be a mapping", ErrInvalid, node.Line, s)
			}
			opts = Options(om)
		}
		*t = Transform{Kind: s, Options: opts}
		return nil
	}

	if len(m) != 1 {
		return fmt.Errorf("%w: line %d: processor entry must have exactly one key, got %d", ErrInvalid, node.Line, len(m))
	}
	for kind, raw := range m {
		opts := Options{}
		if raw != nil {
			om, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: line %d: processor %q options must be a mapping", ErrInvalid, node.Line, kind)
			}
			opts = Options(om)
		}
		*t = Transform{Kind: kind, Options: opts}
	}
	return nil
}

// yamlMapping converts a mapping node into map[string]any, rejecting
// non-string keys at any depth.
func yamlMapping(node *yaml.Node) (map[string]any, error) {
	out := make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.Tag != "!!str" {
			return nil, fmt.Errorf("%w: line %d: key must be a string, got %s", ErrInvalid, k.Line, k.Tag)
		}
		val, err := yamlValue(v)
		if err != nil {
			return nil, err
		}
		out[k.Value] = val
	}
	return out, nil
}

func yamlValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		return yamlMapping(node)
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, c := range node.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		return yamlValue(node.Alias)
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalid, node.Line, err)
		}
		return v, nil
	}
}
