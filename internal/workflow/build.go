package workflow

import (
	"fmt"
	"strings"

	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/join"
	"github.com/roach88/tapflow/internal/tasks"
)

// ValidationErrors is returned by Build when Validate finds problems.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("invalid workflow: %s", strings.Join(msgs, "; "))
}

// Graph is a workflow built on an App.
type Graph struct {
	def   *Definition
	app   *engine.App
	nodes map[string]*engine.Task
	order []*engine.Task
	joins []*join.Join
}

// Build validates def and creates its tasks and joins on app.
//
// Nodes are created and batched first, then dependencies are declared, then
// joins are wired in declaration order. Completion callbacks therefore fire
// in the order joins appear in the file.
func Build(app *engine.App, def *Definition, reg *tasks.Registry) (*Graph, error) {
	if errs := Validate(def, reg); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	g := &Graph{
		def:   def,
		app:   app,
		nodes: make(map[string]*engine.Task, len(def.Nodes)),
	}

	for _, n := range def.Nodes {
		var opts []engine.TaskOption
		if n.Description != "" {
			opts = append(opts, engine.WithDescription(n.Description))
		}
		task, err := reg.NewTask(app, n.Type, n.Name, n.Config, opts...)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.Name, err)
		}
		if n.Batch > 1 {
			task.Batch(n.Batch)
		}
		g.nodes[n.Name] = task
		g.order = append(g.order, task)
	}

	for _, n := range def.Nodes {
		task := g.nodes[n.Name]
		for _, dep := range n.DependsOn {
			task.DependsOn(g.nodes[dep.Node], dep.Args...)
		}
	}

	for i, jd := range def.Joins {
		j, err := g.buildJoin(reg, jd)
		if err != nil {
			return nil, fmt.Errorf("joins[%d]: %w", i, err)
		}
		g.joins = append(g.joins, j)
	}
	return g, nil
}

func (g *Graph) buildJoin(reg *tasks.Registry, jd JoinDef) (*join.Join, error) {
	kind, err := join.ParseKind(jd.Kind)
	if err != nil {
		return nil, err
	}

	var opts []join.Option
	if jd.Name != "" {
		opts = append(opts, join.WithName(jd.Name))
	}
	if jd.Iterate {
		opts = append(opts, join.WithIterate())
	}
	if len(jd.Config) > 0 {
		opts = append(opts, join.WithConfig(jd.Config))
	}

	switch kind {
	case join.KindSequence:
		return join.Sequence(g.app, g.lookup(jd.Nodes), opts...)
	case join.KindFork:
		return join.Fork(g.app, g.nodes[jd.Source], g.lookup(jd.Targets), opts...)
	case join.KindMerge:
		return join.Merge(g.app, g.nodes[jd.Target], g.lookup(jd.Sources), opts...)
	case join.KindSyncMerge:
		return join.SyncMerge(g.app, g.nodes[jd.Target], g.lookup(jd.Sources), opts...)
	case join.KindSwitch:
		sel, err := reg.NewSelector(jd.Selector, jd.SelectorConfig)
		if err != nil {
			return nil, err
		}
		return join.Switch(g.app, g.nodes[jd.Source], g.lookup(jd.Targets), sel, opts...)
	case join.KindGate:
		var target *engine.Task
		if jd.Target != "" {
			target = g.nodes[jd.Target]
		}
		return join.Gate(g.app, g.nodes[jd.Source], target, opts...)
	default:
		return nil, fmt.Errorf("unsupported join kind %s", kind)
	}
}

func (g *Graph) lookup(names []string) []*engine.Task {
	out := make([]*engine.Task, len(names))
	for i, name := range names {
		out[i] = g.nodes[name]
	}
	return out
}

// Definition returns the definition the graph was built from.
func (g *Graph) Definition() *Definition { return g.def }

// App returns the App the graph runs on.
func (g *Graph) App() *engine.App { return g.app }

// Node returns the task declared under name.
func (g *Graph) Node(name string) (*engine.Task, bool) {
	t, ok := g.nodes[name]
	return t, ok
}

// Nodes returns the declared tasks in declaration order.
func (g *Graph) Nodes() []*engine.Task {
	return append([]*engine.Task(nil), g.order...)
}

// Joins returns the joins in declaration order.
func (g *Graph) Joins() []*join.Join {
	return append([]*join.Join(nil), g.joins...)
}

// Enqueue submits inputs to the node declared under name.
func (g *Graph) Enqueue(name string, inputs ...any) error {
	task, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("unknown node %q", name)
	}
	_, err := g.app.Submit(task, inputs...)
	return err
}

// Reset starts a new run cycle and clears join state.
func (g *Graph) Reset() error {
	if err := g.app.Reset(); err != nil {
		return err
	}
	for _, j := range g.joins {
		j.Reset()
	}
	return nil
}
