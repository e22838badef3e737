// Package processor implements the declarative processor chain that runs over
// a semi-structured record before it is turned into a row.
//
// A chain is an ordered list of stages. Each stage is a pure function of its
// configuration and its input value: it takes ownership of the value, and the
// value it returns is the next stage's input. Stages never run concurrently
// for the same record; independent records may be processed in parallel by
// the caller as long as each record owns its value.
//
// Concrete stages live in processor/builtin and register themselves by kind:
//
//	import _ "tsingest/internal/processor/builtin"
//
//	chain, err := processor.Build(pipeline.Processors)
//	out, err := chain.Exec(records.Object{"host": records.String("a")})
package processor

import (
	"tsingest/pkg/records"
)

// Processor is the capability set shared by every stage.
type Processor interface {
	// Kind returns the registered stage kind, e.g. "select".
	Kind() string

	// IgnoreMissing reports whether a missing input field should be treated
	// as a no-op instead of failing the record.
	IgnoreMissing() bool

	// Exec transforms v. On a missing-field error the returned value must be
	// the unmodified input so the chain can pass it through.
	Exec(v records.Value) (records.Value, error)
}

// Chain is an ordered list of stages.
type Chain []Processor

// Exec runs every stage in order. A failing stage aborts the record unless
// the stage ignores missing fields and the failure is a missing-field
// condition; value-type and configuration errors always propagate.
func (c Chain) Exec(v records.Value) (records.Value, error) {
	for i, p := range c {
		out, err := p.Exec(v)
		if err != nil {
			if p.IgnoreMissing() && IsMissingField(err) {
				if out == nil {
					out = v
				}
				v = out
				continue
			}
			return nil, &StageError{Index: i, Kind: p.Kind(), Err: err}
		}
		v = out
	}
	return v, nil
}

// Kinds returns the kind of each stage, in order.
func (c Chain) Kinds() []string {
	out := make([]string, len(c))
	for i, p := range c {
		out[i] = p.Kind()
	}
	return out
}
