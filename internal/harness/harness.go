package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/store"
	"github.com/roach88/tapflow/internal/tasks"
	"github.com/roach88/tapflow/internal/testutil"
	"github.com/roach88/tapflow/internal/workflow"
)

// Harness runs scenarios against real workflows.
type Harness struct {
	registry *tasks.Registry
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithRegistry sets the task registry workflows are built from.
// Default: tasks.Default().
func WithRegistry(r *tasks.Registry) Option {
	return func(h *Harness) { h.registry = r }
}

// WithLogger sets the logger handed to the App. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = tasks.Default()
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Run executes a scenario with the default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Load and build the workflow on a new App
//  2. Enqueue the inputs in order
//  3. Run until the queue drains or the run halts
//  4. Read the trace back from the store and evaluate expectations
//
// The returned error reports problems with the scenario itself (an invalid
// workflow, an unknown input node). A run that halts with an error is a
// scenario outcome, reported in Result.RunError.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	def, err := loadDefinition(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cycle := scenario.Cycle
	if cycle == "" {
		cycle = DefaultCycle
	}

	app := engine.New(
		engine.WithLogger(h.logger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithTokenGenerator(testutil.NewFixedTokenGenerator(cycle)),
		engine.WithRecorder(store.NewRecorderWithClock(st, testutil.NewDeterministicClock())),
		engine.WithMaxSteps(scenario.MaxSteps),
	)
	graph, err := workflow.Build(app, def, h.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	for i, in := range scenario.Inputs {
		for _, v := range in.Values {
			if err := graph.Enqueue(in.Node, v); err != nil {
				return nil, fmt.Errorf("inputs[%d]: %w", i, err)
			}
		}
	}

	result := NewResult(cycle)
	runErr := app.Run(ctx)
	if runErr != nil {
		result.RunError = runErr.Error()
	}
	h.logger.Info("scenario run finished",
		"scenario", scenario.Name,
		"cycle", cycle,
		"processed", app.Info().Processed,
		"error", runErr,
	)

	if err := readTrace(ctx, st, result); err != nil {
		return nil, err
	}

	checkOutcome(scenario.Expect, runErr, result)
	actx := &AssertionContext{Store: st, Ctx: ctx, Cycle: cycle}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadDefinition reads the scenario's workflow file or inline definition.
func loadDefinition(s *Scenario) (*workflow.Definition, error) {
	if s.Workflow != "" {
		def, err := workflow.LoadFile(s.Workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow: %w", err)
		}
		return def, nil
	}

	data, err := yaml.Marshal(map[string]any{"workflow": s.Definition})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inline definition: %w", err)
	}
	def, err := workflow.Parse(data, s.Name+".yaml", workflow.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load inline definition: %w", err)
	}
	return def, nil
}

// readTrace fills the trace and terminal values from the store. Records and
// terminal events are merged by seq; both come from one clock.
func readTrace(ctx context.Context, st *store.Store, result *Result) error {
	records, err := st.ReadCycle(ctx, result.Cycle)
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	terminals, err := st.ReadTerminal(ctx, result.Cycle)
	if err != nil {
		return fmt.Errorf("failed to read terminals: %w", err)
	}

	seqOf := make(map[string]int64, len(records))
	for _, r := range records {
		seqOf[r.ID] = r.Seq
	}

	i, k := 0, 0
	for i < len(records) || k < len(terminals) {
		if k >= len(terminals) || (i < len(records) && records[i].Seq < terminals[k].Seq) {
			r := records[i]
			var parents []int64
			for _, p := range r.Parents {
				parents = append(parents, seqOf[p])
			}
			result.Trace = append(result.Trace, TraceEvent{
				Type:    EventRecord,
				Seq:     r.Seq,
				Node:    r.Producer,
				Key:     r.Key,
				Value:   r.Value,
				Parents: parents,
			})
			i++
			continue
		}

		t := terminals[k]
		result.Trace = append(result.Trace, TraceEvent{
			Type:    EventTerminal,
			Seq:     t.Seq,
			Node:    t.Node,
			Value:   t.Record.Value,
			Parents: []int64{seqOf[t.Record.ID]},
		})
		result.Terminal[t.Node] = append(result.Terminal[t.Node], t.Record.Value)
		k++
	}
	return nil
}

// checkOutcome compares the run error and terminal values with expect.
func checkOutcome(expect Expect, runErr error, result *Result) {
	switch {
	case expect.Error == "" && runErr != nil:
		result.AddError(fmt.Sprintf("run failed: %v", runErr))
	case expect.Error != "" && runErr == nil:
		result.AddError(fmt.Sprintf("run succeeded, expected error containing %q", expect.Error))
	case expect.Error != "" && !containsError(runErr, expect.Error):
		result.AddError(fmt.Sprintf("run error %q does not contain %q", runErr, expect.Error))
	}

	for _, node := range sortedKeys(expect.Terminal) {
		want := expect.Terminal[node]
		got := result.Terminal[node]
		if !valuesEqual(got, want) {
			result.AddError(fmt.Sprintf("terminal %s: expected %v, got %v", node, want, got))
		}
	}
}
