package tasks

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/config"
	"github.com/roach88/tapflow/internal/engine"
)

func newTestApp() *engine.App {
	return engine.New(
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTokenGenerator(engine.NewFixedGenerator("cycle-1")),
	)
}

// runOne runs a single task of typ on inputs and returns its terminal value.
func runOne(t *testing.T, typ string, raw map[string]any, inputs ...any) (any, error) {
	t.Helper()
	app := newTestApp()
	task, err := Default().NewTask(app, typ, "n", raw)
	require.NoError(t, err)

	app.Enqueue(task, inputs...)
	if err := app.Run(context.Background()); err != nil {
		return nil, err
	}
	values := app.Aggregator().Values(task)
	require.Len(t, values, 1)
	return values[0], nil
}

func TestDefault_Names(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{"append", "concat", "count", "fail", "identity", "split", "sum"}, r.Types())
	assert.Equal(t, []string{"trail_length", "value"}, r.Selectors())
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Type{Name: "x", Process: identity}))
	assert.Error(t, r.Register(Type{Name: "x", Process: identity}), "duplicate")
	assert.Error(t, r.Register(Type{Name: "y"}), "no process")
	assert.Error(t, r.RegisterSelector(SelectorType{Name: "s"}), "no build")

	_, err := r.NewTask(newTestApp(), "missing", "n", nil)
	assert.Error(t, err)
	_, err = r.NewSelector("missing", nil)
	assert.Error(t, err)
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		raw    map[string]any
		inputs []any
		want   any
	}{
		{"identity", "identity", nil, []any{42}, 42},
		{"identity many", "identity", nil, []any{1, 2}, []any{1, 2}},
		{"append default suffix", "append", nil, []any{"x"}, "xn"},
		{"append suffix", "append", map[string]any{"suffix": "!"}, []any{"x"}, "x!"},
		{"append nil input", "append", map[string]any{"suffix": "!"}, []any{nil}, "!"},
		{"concat", "concat", map[string]any{"sep": "-"}, []any{"a", 1, "b"}, "a-1-b"},
		{"concat flattens", "concat", nil, []any{[]any{"a", "b"}, "c"}, "abc"},
		{"sum ints", "sum", nil, []any{1, int64(2), []any{3, 4}}, 10},
		{"sum floats", "sum", nil, []any{1, 0.5}, 1.5},
		{"sum integral floats", "sum", nil, []any{1.0, 2.0}, 3},
		{"split", "split", nil, []any{"a,b"}, []any{"a", "b"}},
		{"split sep", "split", map[string]any{"sep": "|"}, []any{"a|b|c"}, []any{"a", "b", "c"}},
		{"split empty", "split", nil, []any{""}, []any{}},
		{"count", "count", nil, []any{[]int{1, 2, 3}}, 3},
		{"count empty", "count", nil, []any{[]any{}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runOne(t, tt.typ, tt.raw, tt.inputs...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltins_Errors(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		inputs []any
	}{
		{"append non-string", "append", []any{3}},
		{"sum non-number", "sum", []any{"x"}},
		{"split non-string", "split", []any{3}},
		{"count scalar", "count", []any{"abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runOne(t, tt.typ, nil, tt.inputs...)
			assert.Error(t, err)
		})
	}
}

func TestFail(t *testing.T) {
	_, err := runOne(t, "fail", map[string]any{"message": "nope"}, 1)
	require.ErrorIs(t, err, ErrTaskFailed)
	assert.Contains(t, err.Error(), "node n: task failed: nope")
}

func TestNewTask_ConfigErrors(t *testing.T) {
	r := Default()
	var cfgErr *config.ConfigurationError

	_, err := r.NewTask(newTestApp(), "append", "n", map[string]any{"prefix": "x"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "prefix", cfgErr.Option)

	_, err = r.NewTask(newTestApp(), "split", "n", map[string]any{"sep": ""})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sep", cfgErr.Option)
}

func TestNewTask_Description(t *testing.T) {
	task, err := Default().NewTask(newTestApp(), "sum", "total", nil)
	require.NoError(t, err)
	assert.Equal(t, "adds numeric inputs, flattening arrays", task.Description())
	assert.Equal(t, "total", task.Name())
}

func TestByValue(t *testing.T) {
	tests := []struct {
		value any
		index int
		ok    bool
	}{
		{1, 1, true},
		{int64(2), 2, true},
		{float64(0), 0, true},
		{1.5, 0, false},
		{"1", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		index, ok := ByValue(audit.New(nil, tt.value))
		assert.Equal(t, tt.ok, ok, "%v", tt.value)
		assert.Equal(t, tt.index, index, "%v", tt.value)
	}
}

func TestTrailLength(t *testing.T) {
	sel, err := Default().NewSelector("trail_length", map[string]any{"threshold": 2})
	require.NoError(t, err)

	root := audit.New(nil, "")
	idx, ok := sel(root)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	child := audit.New(nil, "a", root)
	idx, _ = sel(child)
	assert.Equal(t, 1, idx)

	_, err = Default().NewSelector("trail_length", map[string]any{"threshold": 0})
	assert.Error(t, err)
}
