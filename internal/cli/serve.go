package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	Database string
	MaxSteps int

	// Ready, when set, receives the server once the engine is wired (for
	// testing).
	Ready func(*server.Server)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <workflow>",
		Short: "Host a workflow behind an HTTP API",
		Long: `Host a workflow on a long-lived engine behind an HTTP API.

The engine waits for work instead of returning when its queue drains. Work
is submitted with POST /v1/enqueue; terminal results are read from
GET /v1/results and Prometheus metrics from /metrics. Ctrl-C, POST /v1/stop
and POST /v1/terminate end the engine and shut the listener down.

Examples:
  tapflow serve ./pipeline.yaml
  tapflow serve ./pipeline.yaml --listen :9090 --db ./audit.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveWorkflow(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit store")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "fail the engine after this many work items (0 = unlimited)")

	return cmd
}

func serveWorkflow(opts *ServeOptions, path string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	def, err := loadWorkflow(path)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load workflow", err)
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	appOpts := []engine.AppOption{
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithMaxSteps(opts.MaxSteps),
	}
	srvOpts := []server.Option{server.WithGatherer(reg), server.WithLogger(logger)}
	if opts.Database != "" {
		st, rec, err := openRecorder(ctx, opts.Database, logger)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer closeStore(st, logger)
		appOpts = append(appOpts, engine.WithRecorder(rec))
		srvOpts = append(srvOpts, server.WithStore(st))
	}

	app := engine.New(appOpts...)
	graph, err := buildGraph(app, def)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to build workflow", err)
	}
	srv := server.New(graph, srvOpts...)
	if opts.Ready != nil {
		opts.Ready(srv)
	}

	logger.Info("serving workflow", "workflow", def.Name, "listen", opts.Listen, "cycle", app.Cycle())

	engineErr := make(chan error, 1)
	go func() {
		err := app.Serve(ctx)
		// A failed engine takes the listener down with it.
		cancel()
		engineErr <- err
	}()

	httpErr := srv.ListenAndServe(ctx, opts.Listen)
	cancel()
	app.Close()
	runErr := <-engineErr

	if httpErr != nil {
		return WrapExitError(ExitCommandError, "http listener failed", httpErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "engine failed", runErr)
	}
	fmt.Fprintln(formatter.GetErrWriter(), "Server stopped.")
	return nil
}
