package processor

import (
	"fmt"
	"sort"
	"sync"

	"tsingest/internal/config"
)

// Factory builds a stage from its options. Implementations return errors
// wrapping ErrConfig for malformed options and ignore unknown keys.
type Factory func(opts config.Options) (Processor, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a stage kind available to Build.
//
// Call Register from an init() function in the package that implements the
// stage. Registering the same kind twice panics so ambiguous wiring fails
// fast.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("processor: Register called with empty kind")
	}
	if f == nil {
		panic("processor: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("processor: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Registered returns the registered kinds in ascending order.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs a chain from stage specifications. Any error is a
// configuration error and identifies the offending stage.
func Build(specs []config.Transform) (Chain, error) {
	chain := make(Chain, 0, len(specs))
	for i, spec := range specs {
		mu.RLock()
		f := factories[spec.Kind]
		mu.RUnlock()

		if f == nil {
			return nil, &StageError{
				Index: i,
				Kind:  spec.Kind,
				Err:   &Error{Kind: spec.Kind, Err: ErrConfig, Msg: "unknown processor kind"},
			}
		}

		opts := spec.Options
		if opts == nil {
			opts = config.Options{}
		}
		p, err := f(opts)
		if err != nil {
			return nil, &StageError{Index: i, Kind: spec.Kind, Err: err}
		}
		chain = append(chain, p)
	}
	return chain, nil
}
