package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/config"
)

// ProcessFunc transforms ordered input values into one output value.
//
// A process may enqueue further work through AppFromContext but must never
// wait for that work: the run loop is single threaded.
type ProcessFunc func(ctx context.Context, inputs ...any) (any, error)

// RecordFunc is the record-level form of ProcessFunc for nodes that shape
// their own output record (lineage included). Returning a nil record means
// the invocation produced nothing: no callbacks fire and nothing is
// aggregated.
type RecordFunc func(ctx context.Context, inputs []*audit.Record) (*audit.Record, error)

// CompletionFunc is notified once per record a node produces.
type CompletionFunc func(ctx context.Context, rec *audit.Record) error

// Completable is anything that accepts completion callbacks.
type Completable interface {
	OnComplete(fn CompletionFunc)
}

// Dependency is a node that must have run, with bound static arguments,
// before the declaring node's process runs.
type Dependency struct {
	Node *Task
	Args []any
}

// TaskOption configures a Task at construction.
type TaskOption func(*taskConfig)

type taskConfig struct {
	schema      *config.Schema
	raw         map[string]any
	description string
}

// WithConfig resolves raw against schema when the task is constructed.
func WithConfig(schema *config.Schema, raw map[string]any) TaskOption {
	return func(c *taskConfig) {
		c.schema = schema
		c.raw = raw
	}
}

// WithDescription sets a human-readable description.
func WithDescription(d string) TaskOption {
	return func(c *taskConfig) { c.description = d }
}

// shared holds what all members of a batch have in common.
type shared struct {
	mu      sync.Mutex
	deps    []Dependency
	members []*Task
}

// Task is a configured, long-lived unit of processing. It is invoked once
// per work item targeting it.
//
// Thread-safety: callback and dependency registration are mutex guarded, so
// workflows can be wired while a run loop is active.
type Task struct {
	app         *App
	name        string
	description string
	config      config.Values
	process     ProcessFunc
	record      RecordFunc

	shared     *shared
	batchIndex int
	batched    bool

	mu        sync.Mutex
	callbacks []CompletionFunc
}

// NewTask creates a task that maps input values to one output value.
// Configuration errors are returned as *config.ConfigurationError.
func NewTask(app *App, name string, process ProcessFunc, opts ...TaskOption) (*Task, error) {
	if process == nil {
		return nil, fmt.Errorf("task %s: process is nil", name)
	}
	t, err := newTask(app, name, opts)
	if err != nil {
		return nil, err
	}
	t.process = process
	return t, nil
}

// NewRecordTask creates a task that produces its own output record.
func NewRecordTask(app *App, name string, fn RecordFunc, opts ...TaskOption) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("task %s: record func is nil", name)
	}
	t, err := newTask(app, name, opts)
	if err != nil {
		return nil, err
	}
	t.record = fn
	return t, nil
}

func newTask(app *App, name string, opts []TaskOption) (*Task, error) {
	if app == nil {
		return nil, fmt.Errorf("task %s: app is nil", name)
	}
	if name == "" {
		return nil, fmt.Errorf("task name is empty")
	}

	var cfg taskConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	schema := cfg.schema
	if schema == nil {
		schema = config.NewSchema(name)
	}
	values, err := schema.Resolve(cfg.raw)
	if err != nil {
		return nil, err
	}

	t := &Task{
		app:         app,
		name:        name,
		description: cfg.description,
		config:      values,
		shared:      &shared{},
	}
	t.shared.members = []*Task{t}
	return t, nil
}

// Name returns the task name shared by all batch members.
func (t *Task) Name() string { return t.name }

// String returns the display name: "name(i)" for batch members, "name"
// otherwise.
func (t *Task) String() string {
	if t.batched {
		return fmt.Sprintf("%s(%d)", t.name, t.batchIndex)
	}
	return t.name
}

// Description returns the task description.
func (t *Task) Description() string { return t.description }

// Config returns the resolved configuration.
func (t *Task) Config() config.Values { return t.config }

// App returns the owning application.
func (t *Task) App() *App { return t.app }

// BatchIndex returns the member index within the batch, 0 when unbatched.
func (t *Task) BatchIndex() int { return t.batchIndex }

// Batched reports whether the task was expanded with Batch.
func (t *Task) Batched() bool { return t.batched }

// Members returns every concrete member of the task's batch in index order.
// An unbatched task is its own only member.
func (t *Task) Members() []*Task {
	t.shared.mu.Lock()
	defer t.shared.mu.Unlock()
	return slices.Clone(t.shared.members)
}

// Batch expands the task into n members. The receiver's batch keeps its
// existing members; new members are clones sharing configuration, process and
// dependencies, and start with a copy of the receiver's callbacks.
// Returns all members in index order.
func (t *Task) Batch(n int) []*Task {
	t.shared.mu.Lock()
	defer t.shared.mu.Unlock()

	first := t.shared.members[0]
	first.batched = true

	first.mu.Lock()
	callbacks := slices.Clone(first.callbacks)
	first.mu.Unlock()

	for i := len(t.shared.members); i < n; i++ {
		clone := &Task{
			app:         first.app,
			name:        first.name,
			description: first.description,
			config:      first.config,
			process:     first.process,
			record:      first.record,
			shared:      first.shared,
			batchIndex:  i,
			batched:     true,
			callbacks:   slices.Clone(callbacks),
		}
		t.shared.members = append(t.shared.members, clone)
	}
	return slices.Clone(t.shared.members)
}

// DependsOn declares that node must have run with args before this task (and
// every member of its batch) runs. Dependencies are resolved in declaration
// order.
func (t *Task) DependsOn(node *Task, args ...any) *Task {
	t.shared.mu.Lock()
	defer t.shared.mu.Unlock()
	t.shared.deps = append(t.shared.deps, Dependency{Node: node, Args: slices.Clone(args)})
	return t
}

// Dependencies returns the declared dependencies in declaration order.
func (t *Task) Dependencies() []Dependency {
	t.shared.mu.Lock()
	defer t.shared.mu.Unlock()
	return slices.Clone(t.shared.deps)
}

// OnComplete registers fn on this task only. Callbacks fire in registration
// order. Use Subscribe to register on every batch member.
func (t *Task) OnComplete(fn CompletionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

func (t *Task) completions() []CompletionFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.callbacks)
}

// Subscribe registers fn on every member of node's batch.
func Subscribe(node *Task, fn CompletionFunc) {
	for _, m := range node.Members() {
		m.OnComplete(fn)
	}
}

// invoke runs the task on inputs and returns the produced record.
func (t *Task) invoke(ctx context.Context, inputs []*audit.Record) (*audit.Record, error) {
	if t.record != nil {
		return t.record(ctx, inputs)
	}

	values := make([]any, len(inputs))
	for i, in := range inputs {
		values[i] = in.Value()
	}
	out, err := t.process(ctx, values...)
	if err != nil {
		return nil, err
	}
	return audit.New(t, out, inputs...), nil
}
