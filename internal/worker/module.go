package worker

import (
	"context"
	"fmt"
)

// Method is a user-registered task handler. args is nil for a nullary
// or bare-method task; for a (method, args) task it carries the caller's
// arguments in task order.
type Method func(ctx context.Context, state any, args []any) (any, error)

// MethodRegistry maps a task's method name to its handler. A Module
// populates one during Init.
type MethodRegistry struct {
	methods map[string]Method
}

// NewMethodRegistry returns an empty registry for a Module to populate.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]Method)}
}

// Register adds or replaces the handler for name.
func (r *MethodRegistry) Register(name string, m Method) {
	r.methods[name] = m
}

// Lookup returns the handler registered for name.
func (r *MethodRegistry) Lookup(name string) (Method, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	return m, nil
}

// Module is the user-supplied unit of work a Worker executes. Init runs
// once at worker startup and returns the state threaded into every task
// dispatch plus the registry of named methods this module exposes.
//
// A Module that returns a non-nil error from Init signals startup
// failure upward; per §4.D the monitor handles the retry, not the
// worker.
type Module interface {
	Init(ctx context.Context, args any) (state any, registry *MethodRegistry, err error)
}

// Nullary is the shape of a handler that takes no arguments beyond the
// user state. Execute does not call values of this type: a nullary task
// is dispatched to the Method registered under the empty name.
type Nullary func(ctx context.Context, state any) (any, error)
