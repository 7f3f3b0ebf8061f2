package harness

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/tapflow/internal/canonical"
	"github.com/roach88/tapflow/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventRecord {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Node, event.Value)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks if node produced a record, optionally with the
// given value.
func assertTraceContains(result *Result, assertion Assertion) error {
	for _, event := range result.records(assertion.Node) {
		if assertion.Value == nil || valuesEqual(event.Value, assertion.Value) {
			return nil
		}
	}

	expected := fmt.Sprintf("record from %s", assertion.Node)
	if assertion.Value != nil {
		expected += fmt.Sprintf(" with value %v", assertion.Value)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertTraceOrder checks that nodes first produce records in the listed
// order. Other nodes may produce records in between.
func assertTraceOrder(result *Result, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range result.Trace {
		if event.Type != EventRecord {
			continue
		}
		if _, seen := positions[event.Node]; !seen {
			positions[event.Node] = i + 1 // 1-indexed for readability
		}
	}

	for _, node := range assertion.Nodes {
		if positions[node] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all nodes present: %v", assertion.Nodes),
				Actual:   fmt.Sprintf("missing node: %s", node),
				Trace:    result.Trace,
			}
		}
	}

	for i := 1; i < len(assertion.Nodes); i++ {
		prev, curr := assertion.Nodes[i-1], assertion.Nodes[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("nodes in order: %v", assertion.Nodes),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: result.Trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that node produced exactly Count records.
func assertTraceCount(result *Result, assertion Assertion) error {
	count := len(result.records(assertion.Node))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d records from %s", assertion.Count, assertion.Node),
			Actual:   fmt.Sprintf("%d records", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTrail reads the first terminal record of node back from the store and
// compares the values along its trail, root first.
func assertTrail(ctx context.Context, st *store.Store, cycle string, assertion Assertion) error {
	terminals, err := st.ReadTerminal(ctx, cycle)
	if err != nil {
		return fmt.Errorf("trail: %w", err)
	}

	idx := slices.IndexFunc(terminals, func(t store.Terminal) bool { return t.Node == assertion.Node })
	if idx < 0 {
		return &AssertionError{
			Type:     AssertTrail,
			Expected: fmt.Sprintf("terminal record for %s", assertion.Node),
			Actual:   "no terminal record",
		}
	}

	trail, err := st.ReadTrail(ctx, terminals[idx].Record.ID)
	if err != nil {
		return fmt.Errorf("trail: %w", err)
	}
	values := make([]any, len(trail))
	for i, r := range trail {
		values[i] = r.Value
	}

	if !valuesEqual(values, assertion.Values) {
		return &AssertionError{
			Type:     AssertTrail,
			Expected: fmt.Sprintf("trail %v", assertion.Values),
			Actual:   fmt.Sprintf("trail %v", values),
		}
	}
	return nil
}

// valuesEqual compares values by their canonical JSON form, so 2 and 2.0
// are equal and map key order does not matter.
func valuesEqual(actual, expected any) bool {
	a, err := canonical.Marshal(actual)
	if err != nil {
		return false
	}
	b, err := canonical.Marshal(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func containsError(err error, want string) bool {
	return err != nil && strings.Contains(err.Error(), want)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	Cycle string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for trail assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertTrail:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: trail requires database context", i)
			} else {
				err = assertTrail(actx.Ctx, actx.Store, actx.Cycle, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
