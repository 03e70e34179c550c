// Package operation defines the closed set of operations a worker can
// execute. Commands name an operation and carry its json arguments;
// nothing outside the registry is ever executed.
package operation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Func executes an operation. The returned value must be json
// serializable.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps operation names to their implementation.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Func)}
}

// Default returns a registry holding the built-in operations.
func Default() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds fn under name, replacing any previous registration.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops[name] = fn
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.ops[name]
	return fn, ok
}

// Names returns the sorted names of all registered operations.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Execute runs the named operation. A panic inside the operation is
// recovered and reported as an error, so a failing operation never
// takes the caller down with it.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (res any, err error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("operation %q panicked: %v", name, p)
		}
	}()

	return fn(ctx, args)
}

// DecodeArgs unmarshals raw operation arguments into T. Empty
// arguments yield the zero value.
func DecodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T

	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}

	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	return args, nil
}
