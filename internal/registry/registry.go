// Package registry is a typed catalog of the orchestrator's callable
// operations. Each operation carries a machine-readable spec so transports
// can advertise capabilities without hardcoding the operation set.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one operation. args carries the decoded request fields;
// the result is a JSON-serializable payload.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Spec describes one operation for capability listings.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry maps operation names to handlers. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]entry
}

type entry struct {
	spec    Spec
	handler Handler
}

func New() *Registry {
	return &Registry{ops: make(map[string]entry)}
}

// Register adds an operation. Duplicate names are a wiring bug and fail
// loudly.
func (r *Registry) Register(spec Spec, h Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("registry: operation name cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("registry: operation %s has no handler", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[spec.Name]; exists {
		return fmt.Errorf("registry: operation %s already registered", spec.Name)
	}
	r.ops[spec.Name] = entry{spec: spec, handler: h}
	return nil
}

// Call dispatches to a registered operation.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	e, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown operation %q", name)
	}
	return e.handler(ctx, args)
}

// Specs lists all registered operations sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.ops))
	for _, e := range r.ops {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
