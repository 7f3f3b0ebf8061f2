package tasks

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/tapflow/internal/config"
	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/join"
)

// Type describes a task type. Process reads its options from the executing
// node's configuration (engine.NodeFromContext).
type Type struct {
	Name        string
	Description string
	Schema      func() *config.Schema
	Process     engine.ProcessFunc
}

// SelectorType describes a named switch selector.
type SelectorType struct {
	Name        string
	Description string
	Schema      func() *config.Schema
	Build       func(cfg config.Values) join.Selector
}

// Registry holds task and selector types by name. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	types     map[string]Type
	selectors map[string]SelectorType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]Type),
		selectors: make(map[string]SelectorType),
	}
}

// Default returns a new registry holding the built-in types and selectors.
func Default() *Registry {
	r := NewRegistry()
	for _, t := range builtinTypes() {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	for _, s := range builtinSelectors() {
		if err := r.RegisterSelector(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a task type. Names must be unique.
func (r *Registry) Register(t Type) error {
	if t.Name == "" || t.Process == nil {
		return fmt.Errorf("task type needs a name and a process func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("task type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// RegisterSelector adds a selector type. Names must be unique.
func (r *Registry) RegisterSelector(s SelectorType) error {
	if s.Name == "" || s.Build == nil {
		return fmt.Errorf("selector needs a name and a build func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.selectors[s.Name]; dup {
		return fmt.Errorf("selector %q already registered", s.Name)
	}
	r.selectors[s.Name] = s
	return nil
}

// Lookup returns the task type registered under name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types returns the registered task type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Selectors returns the registered selector names, sorted.
func (r *Registry) Selectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.selectors))
	for name := range r.selectors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewTask creates a task named name of type typeName, resolving raw against
// the type's schema. opts are applied after the type's own options.
func (r *Registry) NewTask(app *engine.App, typeName, name string, raw map[string]any, opts ...engine.TaskOption) (*engine.Task, error) {
	t, ok := r.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("task %s: unknown type %q", name, typeName)
	}
	base := []engine.TaskOption{
		engine.WithConfig(schemaOf(t.Name, t.Schema), raw),
		engine.WithDescription(t.Description),
	}
	return engine.NewTask(app, name, t.Process, append(base, opts...)...)
}

// NewSelector builds the selector registered under name with raw options.
func (r *Registry) NewSelector(name string, raw map[string]any) (join.Selector, error) {
	r.mu.RLock()
	s, ok := r.selectors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown selector %q", name)
	}

	cfg, err := schemaOf(s.Name, s.Schema).Resolve(raw)
	if err != nil {
		return nil, err
	}
	return s.Build(cfg), nil
}

func schemaOf(name string, fn func() *config.Schema) *config.Schema {
	if fn == nil {
		return config.NewSchema(name)
	}
	return fn()
}
