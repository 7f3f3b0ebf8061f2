package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tapflow/internal/canonical"
)

// GoldenDir is where RunWithGolden and AssertGolden keep golden files.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string           `json:"scenario_name"`
	Cycle        string           `json:"cycle"`
	Trace        []TraceEvent     `json:"trace"`
	Terminal     map[string][]any `json:"terminal"`
	RunError     string           `json:"run_error,omitempty"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization, which handles maps, slices and primitives only.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type":  event.Type,
			"seq":   event.Seq,
			"node":  event.Node,
			"value": event.Value,
		}
		if event.Key != nil {
			eventMap["key"] = event.Key
		}
		if len(event.Parents) > 0 {
			eventMap["parents"] = event.Parents
		}
		traceList[i] = eventMap
	}

	terminal := make(map[string]any, len(s.Terminal))
	for node, values := range s.Terminal {
		terminal[node] = values
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"cycle":         s.Cycle,
		"trace":         traceList,
		"terminal":      terminal,
	}
	if s.RunError != "" {
		result["run_error"] = s.RunError
	}
	return result
}

// Snapshot builds the canonical JSON trace snapshot of a result.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Cycle:        result.Cycle,
		Trace:        result.Trace,
		Terminal:     result.Terminal,
		RunError:     result.RunError,
	}
	return canonical.Marshal(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass as well; a trace mismatch
// fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
