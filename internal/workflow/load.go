package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Format is the syntax a workflow file is written in.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported workflow file %q: want .cue, .yaml or .yml", path)
	}
}

// LoadFile reads and compiles a workflow file.
func LoadFile(path string) (*Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return Parse(data, path, format)
}

// Parse compiles workflow source. filename is used in error positions only.
func Parse(data []byte, filename string, format Format) (*Definition, error) {
	ctx := cuecontext.New()

	var root cue.Value
	switch format {
	case FormatCUE:
		root = ctx.CompileBytes(data, cue.Filename(filename))
	case FormatYAML:
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: parse yaml: %w", filename, err)
		}
		root = ctx.Encode(doc)
	default:
		return nil, fmt.Errorf("unsupported workflow format %q", format)
	}
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := root.LookupPath(cue.ParsePath("workflow"))
	if !v.Exists() {
		return nil, &CompileError{Field: "workflow", Message: "workflow is required", Pos: root.Pos()}
	}
	return Compile(v)
}

// Compile unifies v with the workflow schema and decodes it.
func Compile(v cue.Value) (*Definition, error) {
	schema := v.Context().CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Workflow")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var def Definition
	if err := unified.Decode(&def); err != nil {
		return nil, formatCUEError(err)
	}
	return &def, nil
}

// CompileError is a load error with source position when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Field: "cue", Message: first.Error()}
}
