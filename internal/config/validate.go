package config

// This file adds a lightweight linter for Pipeline values. It performs static
// checks over a decoded Pipeline and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests. Stage options are
// checked for real when the processor chain is built.

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced but need
	// not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "ingest.validation_mode",
// "processors[1].kind").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// KnownProcessors lists the stage kinds shipped with this module. Unknown
// kinds are warnings here; the chain builder rejects them.
var KnownProcessors = map[string]struct{}{
	"select":  {},
	"require": {},
	"letter":  {},
	"coerce":  {},
}

// ValidatePipeline performs static validation of a Pipeline without mutating it.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and log correlation",
		})
	}
	issues = append(issues, validateIngest(p.Ingest)...)
	issues = append(issues, validateProcessors(p.Processors)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateIngest(in Ingest) []Issue {
	switch strings.ToLower(strings.TrimSpace(in.ValidationMode)) {
	case "", "strict", "lossy", "unchecked":
		return nil
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "ingest.validation_mode",
			Message:  fmt.Sprintf("unknown validation mode %q; expect strict, lossy or unchecked", in.ValidationMode),
		}}
	}
}

func validateProcessors(ts []Transform) []Issue {
	var issues []Issue

	for i, t := range ts {
		path := fmt.Sprintf("processors[%d].kind", i)
		if strings.TrimSpace(t.Kind) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  "processor kind must not be empty",
			})
			continue
		}
		if _, ok := KnownProcessors[t.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path,
				Message:  fmt.Sprintf("unknown processor kind %q; ensure a matching implementation is registered", t.Kind),
			})
			continue
		}

		if !t.Options.Has("field") && !t.Options.Has("fields") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("processors[%d].options", i),
				Message:  fmt.Sprintf("%s processor has no field or fields; building the chain will fail", t.Kind),
			})
		}
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.LabelHint < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.label_hint",
			Message:  "label_hint must not be negative",
		})
	}
	if r.RowHint < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.row_hint",
			Message:  "row_hint must not be negative",
		})
	}

	return issues
}
