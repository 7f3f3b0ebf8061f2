package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tapflow/internal/tasks"
	"github.com/roach88/tapflow/internal/workflow"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid" yaml:"valid"`
	Workflow string                     `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Nodes    int                        `json:"nodes" yaml:"nodes"`
	Joins    int                        `json:"joins" yaml:"joins"`
	Errors   []workflow.ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []workflow.CycleWarning    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow file without running it",
		Long: `Validate a CUE or YAML workflow file without running it.

Checks the file against the workflow schema, then checks node and join
references, task types and selectors against the built-in registry. Join
feedback loops are reported as warnings: loops that end through a switch or
a gate are a normal way to write iteration.

Exit codes:
  0 - Workflow valid (warnings allowed)
  1 - Validation errors
  2 - File missing or unparsable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := NewOutputFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	def, err := loadWorkflow(path)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load workflow", err)
	}
	formatter.VerboseLog("Loaded workflow %q: %d node(s), %d join(s)", def.Name, len(def.Nodes), len(def.Joins))

	result := ValidationResult{
		Workflow: def.Name,
		Nodes:    len(def.Nodes),
		Joins:    len(def.Joins),
		Errors:   workflow.Validate(def, tasks.Default()),
		Warnings: workflow.AnalyzeCycles(def),
	}
	result.Valid = len(result.Errors) == 0

	if formatter.Structured() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		outputValidateText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func outputValidateText(formatter *OutputFormatter, result ValidationResult) {
	w := formatter.Writer

	if result.Valid {
		fmt.Fprintf(w, "✓ Workflow %s valid (%d nodes, %d joins)\n", result.Workflow, result.Nodes, result.Joins)
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
		}
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn.Message)
	}
}
