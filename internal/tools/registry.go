package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"sportai.io/internal/facility"
)

var (
	ErrUnknownCapability = errors.New("tools: unknown capability")
	ErrNotRegistered     = errors.New("tools: capability not registered")
	ErrNotLoaded         = errors.New("tools: capability not loaded")
	ErrDuplicate         = errors.New("tools: capability already registered")
)

// Metric is one labelled figure a tool reports.
type Metric struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Summary is what a tool renders on its dashboard card.
type Summary struct {
	Capability Capability `json:"capability"`
	Title      string     `json:"title"`
	Metrics    []Metric   `json:"metrics"`
	Notes      []string   `json:"notes,omitempty"`
}

// Tool is a loaded dashboard module.
type Tool interface {
	Capability() Capability
	Summary(ctx context.Context) (Summary, error)
}

// Env is what factories build tools from.
type Env struct {
	Config facility.Config
}

// Factory constructs the tool for one capability. A factory error marks the
// capability as failed for this process.
type Factory func(Env) (Tool, error)

// Registry maps capabilities to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Capability]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Capability]Factory)}
}

// Register binds f to c. Unknown capabilities and duplicates are rejected.
func (r *Registry) Register(c Capability, f Factory) error {
	if _, ok := Describe(c); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, c)
	}
	if f == nil {
		return fmt.Errorf("tools: nil factory for %s", c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[c]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c)
	}
	r.factories[c] = f
	return nil
}

// Resolve returns the factory for c or ErrNotRegistered.
func (r *Registry) Resolve(c Capability) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, c)
	}
	return f, nil
}

// Registered lists the bound capabilities, sorted.
func (r *Registry) Registered() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.factories))
	for c := range r.factories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
