package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one workflow run and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workflow is the path to a CUE or YAML workflow file. Relative paths are
	// resolved against the scenario file's directory by LoadScenario.
	Workflow string `yaml:"workflow,omitempty"`

	// Definition is an inline workflow in the YAML workflow format. Exactly
	// one of Workflow and Definition must be set.
	Definition map[string]any `yaml:"definition,omitempty"`

	// Cycle is an optional fixed run-cycle token.
	// Defaults to "test-cycle" for deterministic golden comparison.
	Cycle string `yaml:"cycle,omitempty"`

	// MaxSteps bounds the run. 0 means unlimited.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Inputs are enqueued in order before the run starts.
	Inputs []Input `yaml:"inputs"`

	// Expect describes the run outcome.
	Expect Expect `yaml:"expect"`

	// Assertions validate the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Input enqueues each value as its own work item on node.
type Input struct {
	Node   string `yaml:"node"`
	Values []any  `yaml:"values"`
}

// Expect describes the outcome of a run.
type Expect struct {
	// Terminal maps node display names to the values collected for them,
	// in order. Nodes not listed are not checked.
	Terminal map[string][]any `yaml:"terminal,omitempty"`

	// Error, if set, must be contained in the error the run halts with.
	// Without it the run must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": node produced a record (with Value, if set)
	// - "trace_order": Nodes first produce records in this order
	// - "trace_count": node produced exactly Count records
	// - "trail": the first terminal record of node has trail Values
	Type string `yaml:"type"`

	Node   string   `yaml:"node,omitempty"`
	Value  any      `yaml:"value,omitempty"`
	Nodes  []string `yaml:"nodes,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Values []any    `yaml:"values,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertTrail         = "trail"
)

// DefaultCycle is the cycle token used when a scenario does not set one.
const DefaultCycle = "test-cycle"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Workflow != "" && !filepath.IsAbs(scenario.Workflow) {
		scenario.Workflow = filepath.Join(filepath.Dir(path), scenario.Workflow)
	}
	if scenario.Workflow != "" {
		if _, err := os.Stat(scenario.Workflow); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("invalid scenario: workflow file not found: %s", scenario.Workflow)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Workflow paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Workflow == "" && s.Definition == nil:
		return fmt.Errorf("workflow or definition is required")
	case s.Workflow != "" && s.Definition != nil:
		return fmt.Errorf("workflow and definition are mutually exclusive")
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	if len(s.Inputs) == 0 {
		return fmt.Errorf("inputs list is required and must be non-empty")
	}
	for i, in := range s.Inputs {
		if in.Node == "" {
			return fmt.Errorf("inputs[%d]: node is required", i)
		}
		if len(in.Values) == 0 {
			return fmt.Errorf("inputs[%d]: values is required and must be non-empty", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Nodes) == 0 {
			return fmt.Errorf("assertions[%d]: nodes list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTrail:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for trail", index)
		}
		if len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: values list is required for trail", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
