package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/store"
	"github.com/roach88/tapflow/internal/workflow"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Node     string
	Inputs   []string
	Database string
	MaxSteps int
	Trail    bool

	// Tokens allows overriding the cycle token generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	Tokens engine.TokenGenerator
}

// RunResult is the structured output of the run command.
type RunResult struct {
	Cycle     string       `json:"cycle" yaml:"cycle"`
	State     string       `json:"state" yaml:"state"`
	Processed int64        `json:"processed" yaml:"processed"`
	Results   []NodeResult `json:"results" yaml:"results"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// NodeResult holds the terminal values collected for one node.
type NodeResult struct {
	Node   string  `json:"node" yaml:"node"`
	Values []any   `json:"values" yaml:"values"`
	Trails [][]any `json:"trails,omitempty" yaml:"trails,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow once and print its terminal results",
		Long: `Run a workflow until its queue drains and print the terminal results.

Each --input becomes one root record for the entry node (the first declared
node unless --node is set). Inputs are parsed as YAML scalars or flow
collections, so 3 is a number and [1, 2] a list; anything else is a string.

With --db every produced record and every terminal result is written to a
SQLite audit store that "tapflow trace" can read back.

Examples:
  tapflow run ./pipeline.yaml --input hello
  tapflow run ./loop.cue --node a --input "" --trail
  tapflow run ./pipeline.yaml --input 1 --input 2 --db ./audit.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Node, "node", "", "entry node (default: first declared node)")
	cmd.Flags().StringArrayVar(&opts.Inputs, "input", nil, "input value for the entry node (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit store")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "fail the run after this many work items (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Trail, "trail", false, "print the audit trail of every terminal result")

	return cmd
}

func runWorkflow(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	def, err := loadWorkflow(path)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load workflow", err)
	}

	entry := opts.Node
	if entry == "" && len(def.Nodes) > 0 {
		entry = def.Nodes[0].Name
	}
	if _, ok := def.Node(entry); !ok {
		_ = formatter.Error(workflow.ErrUnknownNode, fmt.Sprintf("unknown node %q", entry), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown node %q", entry))
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	appOpts := []engine.AppOption{engine.WithLogger(logger), engine.WithMaxSteps(opts.MaxSteps)}
	if opts.Tokens != nil {
		appOpts = append(appOpts, engine.WithTokenGenerator(opts.Tokens))
	}
	if opts.Database != "" {
		st, rec, err := openRecorder(ctx, opts.Database, logger)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer closeStore(st, logger)
		appOpts = append(appOpts, engine.WithRecorder(rec))
	}

	app := engine.New(appOpts...)
	graph, err := buildGraph(app, def)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to build workflow", err)
	}

	if err := enqueueInputs(graph, entry, opts.Inputs); err != nil {
		return WrapExitError(ExitCommandError, "failed to enqueue", err)
	}

	logger.Debug("running workflow", "workflow", def.Name, "entry", entry, "inputs", len(opts.Inputs), "cycle", app.Cycle())
	runErr := app.Run(ctx)

	result := collectResult(app, opts.Trail)
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if formatter.Structured() {
		resp := CLIResponse{Status: "ok", Data: result, Cycle: result.Cycle}
		if runErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeRunFailed, Message: runErr.Error()}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else if err := outputRunText(formatter.Writer, app, result, opts.Trail); err != nil {
		return err
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

// collectResult reads the terminal results in first-arrival node order.
func collectResult(app *engine.App, trails bool) RunResult {
	info := app.Info()
	result := RunResult{
		Cycle:     info.Cycle,
		State:     info.State.String(),
		Processed: info.Processed,
		Results:   []NodeResult{},
	}

	agg := app.Aggregator()
	for _, node := range agg.Nodes() {
		nr := NodeResult{Node: node.String(), Values: agg.Values(node)}
		if trails {
			for _, rec := range agg.Results(node) {
				nr.Trails = append(nr.Trails, rec.TrailValues())
			}
		}
		result.Results = append(result.Results, nr)
	}
	return result
}

func outputRunText(w io.Writer, app *engine.App, result RunResult, trails bool) error {
	fmt.Fprintf(w, "Cycle: %s\n", result.Cycle)
	fmt.Fprintf(w, "State: %s (%d processed)\n", result.State, result.Processed)
	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
	fmt.Fprintln(w)

	if len(result.Results) == 0 {
		fmt.Fprintln(w, "(no results)")
		return nil
	}

	agg := app.Aggregator()
	for _, node := range agg.Nodes() {
		fmt.Fprintf(w, "%s:\n", node)
		for _, rec := range agg.Results(node) {
			fmt.Fprintf(w, "  %s\n", formatValue(rec.Value()))
			if !trails {
				continue
			}
			var trail strings.Builder
			if err := audit.Format(&trail, rec); err != nil {
				return err
			}
			fmt.Fprint(w, indent(trail.String(), "    "))
		}
	}
	return nil
}

// enqueueInputs enqueues one work item per raw input at entry. Without
// inputs the entry node runs once with no arguments.
func enqueueInputs(graph *workflow.Graph, entry string, raw []string) error {
	if len(raw) == 0 {
		return graph.Enqueue(entry)
	}
	for _, in := range raw {
		if err := graph.Enqueue(entry, parseInput(in)); err != nil {
			return err
		}
	}
	return nil
}

// parseInput decodes a command-line input as a YAML value. Inputs that are
// empty or fail to parse are kept as strings.
func parseInput(raw string) any {
	if raw == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}

// openRecorder opens the audit store at path and a recorder continuing its
// sequence numbers.
func openRecorder(ctx context.Context, path string, logger *slog.Logger) (*store.Store, *store.Recorder, error) {
	logger.Debug("opening audit store", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	rec, err := store.NewRecorder(ctx, st)
	if err != nil {
		closeStore(st, logger)
		return nil, nil, err
	}
	return st, rec, nil
}

func closeStore(st *store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing audit store", "error", err)
	}
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
