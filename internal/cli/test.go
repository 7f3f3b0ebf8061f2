package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tapflow/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name" yaml:"name"`
	Path   string   `json:"path" yaml:"path"`
	Pass   bool     `json:"pass" yaml:"pass"`
	Golden string   `json:"golden,omitempty" yaml:"golden,omitempty"` // "match", "updated" or empty when no golden file exists
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios" yaml:"scenarios"`
	Passed    int              `json:"passed" yaml:"passed"`
	Failed    int              `json:"failed" yaml:"failed"`
	Total     int              `json:"total" yaml:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios using the harness framework.

Each scenario names a workflow, the inputs to enqueue and the expected
terminal results, run error and trace assertions. Scenarios run on a fresh
engine with a deterministic cycle token and an in-memory audit store.

When golden/<scenario>.golden exists next to a scenario, the canonical JSON
trace must match it byte for byte. --update rewrites the golden files of
passing scenarios.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  tapflow test ./scenarios
  tapflow test ./scenarios --filter "gate*"
  tapflow test ./scenarios --update
  tapflow test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	paths, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(paths) == 0 {
		if formatter.Structured() {
			return outputTestStructured(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	hopts := []harness.Option{}
	if opts.Verbose {
		hopts = append(hopts, harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	suite := harness.New(hopts...).RunSuite(ctx, paths)

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(paths)),
		Total:     len(paths),
	}
	for _, path := range paths {
		scen := scenarioResult(path, suite)
		if scen.Pass {
			checkGolden(&scen, suite, opts.Update)
		}
		if scen.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !formatter.Structured() {
			outputScenarioText(formatter, scen)
		}
		result.Scenarios = append(result.Scenarios, scen)
	}

	if formatter.Structured() {
		return outputTestStructured(formatter, result)
	}
	return outputTestText(formatter, result)
}

// scenarioResult collects what the suite recorded for path.
func scenarioResult(path string, suite *harness.SuiteResult) ScenarioResult {
	scen := ScenarioResult{Name: scenarioBase(path), Path: path}
	for _, o := range suite.Results {
		if o.Path != path {
			continue
		}
		scen.Name = o.Name
		scen.Pass = o.Pass
		if !o.Pass {
			scen.Errors = append(scen.Errors, o.Result.Errors...)
		}
		return scen
	}
	for _, f := range suite.Failures {
		if f.ScenarioPath == path {
			scen.Errors = append(scen.Errors, f.Error)
		}
	}
	return scen
}

// checkGolden compares or rewrites the golden file of a passing scenario.
func checkGolden(scen *ScenarioResult, suite *harness.SuiteResult, update bool) {
	var run *harness.Result
	for _, o := range suite.Results {
		if o.Path == scen.Path {
			run = o.Result
		}
	}
	if run == nil {
		return
	}

	fail := func(msg string) {
		scen.Pass = false
		scen.Errors = append(scen.Errors, msg)
	}

	data, err := harness.Snapshot(scen.Name, run)
	if err != nil {
		fail(fmt.Sprintf("failed to build trace snapshot: %v", err))
		return
	}

	goldenPath := goldenFilePath(scen.Path)
	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			fail(fmt.Sprintf("failed to create golden directory: %v", err))
			return
		}
		if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
			fail(fmt.Sprintf("failed to write golden file: %v", err))
			return
		}
		scen.Golden = "updated"
		return
	}

	golden, err := os.ReadFile(goldenPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		fail(fmt.Sprintf("failed to read golden file: %v", err))
		return
	}
	if !bytes.Equal(golden, data) {
		fail("trace does not match golden file (run with --update to regenerate)")
		return
	}
	scen.Golden = "match"
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioBase(scenarioFile)+".golden")
}

func scenarioBase(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func outputScenarioText(formatter *OutputFormatter, scen ScenarioResult) {
	w := formatter.Writer
	if !scen.Pass {
		fmt.Fprintf(w, "✗ %s\n", scen.Name)
		for _, e := range scen.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}
	if scen.Golden == "updated" {
		fmt.Fprintf(w, "✓ %s (golden updated)\n", scen.Name)
		return
	}
	fmt.Fprintf(w, "✓ %s\n", scen.Name)
}

// outputTestStructured outputs the test result as JSON or YAML.
func outputTestStructured(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := formatter.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
