package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/tasks"
	"github.com/roach88/tapflow/internal/workflow"
)

// LoadError represents an error that occurred while loading a workflow file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants shared by all CLI commands. Workflow validation codes
// (E2xx) come from the workflow package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // workflow file failed to parse or compile
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // workflow failed to build on the engine
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // audit store error
	ErrCodeRunFailed   = "E009" // run halted with an error
)

// loadWorkflow reads and compiles the workflow at path.
func loadWorkflow(path string) (*workflow.Definition, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("workflow file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing workflow file: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a file: %s", path)}
	}

	def, err := workflow.LoadFile(path)
	if err != nil {
		loadErr := &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		var compileErr *workflow.CompileError
		if errors.As(err, &compileErr) {
			loadErr.Message = fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message)
			loadErr.Pos = compileErr.Pos
		}
		return nil, loadErr
	}
	return def, nil
}

// buildGraph builds def on app with the built-in task registry. Validation
// failures keep the code of the first problem.
func buildGraph(app *engine.App, def *workflow.Definition) (*workflow.Graph, error) {
	graph, err := workflow.Build(app, def, tasks.Default())
	if err == nil {
		return graph, nil
	}
	var verrs workflow.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return nil, &LoadError{Code: verrs[0].Code, Message: err.Error()}
	}
	return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
}

// loadErrorCode returns the code carried by err, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return ErrCodeGeneric
}
