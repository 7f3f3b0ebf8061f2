package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/config"
)

func TestNewTask_Validation(t *testing.T) {
	app := newTestApp(t)

	_, err := NewTask(nil, "a", appendName)
	assert.Error(t, err)

	_, err = NewTask(app, "", appendName)
	assert.Error(t, err)

	_, err = NewTask(app, "a", nil)
	assert.Error(t, err)

	_, err = NewRecordTask(app, "a", nil)
	assert.Error(t, err)
}

func TestTask_ConfigAndDescription(t *testing.T) {
	app := newTestApp(t)
	schema := config.NewSchema("append").String("suffix", "", config.Desc("text to append"))

	task := mustTask(t, app, "a", appendName,
		WithConfig(schema, map[string]any{"suffix": "!"}),
		WithDescription("appends text"),
	)

	assert.Equal(t, "!", task.Config().String("suffix"))
	assert.Equal(t, "appends text", task.Description())
	assert.Same(t, app, task.App())
}

func TestTask_Batch(t *testing.T) {
	app := newTestApp(t)
	task := mustTask(t, app, "b", appendName, WithConfig(config.NewSchema("b").Int("n", 7), nil))
	assert.False(t, task.Batched())
	assert.Equal(t, "b", task.String())
	assert.Equal(t, []*Task{task}, task.Members())

	members := task.Batch(3)
	require.Len(t, members, 3)
	assert.Same(t, task, members[0])

	for i, m := range members {
		assert.True(t, m.Batched())
		assert.Equal(t, i, m.BatchIndex())
		assert.Equal(t, "b", m.Name())
		assert.Equal(t, fmt.Sprintf("b(%d)", i), m.String())
		assert.Equal(t, 7, m.Config().Int("n"))
		assert.Equal(t, members, m.Members())
	}

	assert.Len(t, members[2].Batch(4), 4, "batch grows from any member")
	assert.Len(t, task.Batch(2), 4, "batch never shrinks")
}

func TestTask_BatchCopiesExistingCallbacks(t *testing.T) {
	app := newTestApp(t)
	task := mustTask(t, app, "b", appendName)

	var seen []string
	task.OnComplete(func(_ context.Context, rec *audit.Record) error {
		seen = append(seen, rec.Value().(string))
		return nil
	})
	members := task.Batch(2)

	members[1].OnComplete(func(_ context.Context, rec *audit.Record) error {
		seen = append(seen, "only:"+rec.Value().(string))
		return nil
	})

	app.Enqueue(task, "")
	require.NoError(t, app.Run(context.Background()))

	assert.Equal(t, []string{"b(0)", "b(1)", "only:b(1)"}, seen)
}

func TestSubscribe_AllMembers(t *testing.T) {
	app := newTestApp(t)
	task := mustTask(t, app, "b", appendName)
	task.Batch(3)

	count := 0
	Subscribe(task, func(context.Context, *audit.Record) error {
		count++
		return nil
	})

	app.Enqueue(task, "")
	require.NoError(t, app.Run(context.Background()))
	assert.Equal(t, 3, count)
}

func TestTask_Dependencies(t *testing.T) {
	app := newTestApp(t)
	a := mustTask(t, app, "a", appendName)
	b := mustTask(t, app, "b", appendName)
	c := mustTask(t, app, "c", appendName).DependsOn(a, 1).DependsOn(b)

	deps := c.Dependencies()
	require.Len(t, deps, 2)
	assert.Same(t, a, deps[0].Node)
	assert.Equal(t, []any{1}, deps[0].Args)
	assert.Same(t, b, deps[1].Node)
	assert.Empty(t, deps[1].Args)
}

func TestNodeFromContext_Outside(t *testing.T) {
	_, ok := NodeFromContext(context.Background())
	assert.False(t, ok)
	_, ok = AppFromContext(context.Background())
	assert.False(t, ok)
}

func TestAggregator(t *testing.T) {
	app := newTestApp(t)
	a := mustTask(t, app, "a", appendName)
	b := mustTask(t, app, "b", appendName)
	agg := app.Aggregator()

	r1, r2, r3 := audit.New(a, 1), audit.New(b, 2), audit.New(a, 3)
	agg.Add(a, r1)
	agg.Add(b, r2)
	agg.Add(a, r3)

	assert.Equal(t, []*Task{a, b}, agg.Nodes())
	assert.Equal(t, []any{1, 3}, agg.Values(a))
	assert.Equal(t, []*audit.Record{r1, r3, r2}, agg.All())
	assert.Equal(t, 3, agg.Len())
	assert.Equal(t, map[string][]*audit.Record{"a": {r1, r3}, "b": {r2}}, agg.Snapshot())

	agg.Clear()
	assert.Equal(t, 0, agg.Len())
	assert.Empty(t, agg.Nodes())
}

func TestRuntimeError(t *testing.T) {
	cause := fmt.Errorf("inner")
	err := fmt.Errorf("wrapped: %w", NewDependencyFailure("dep", cause))

	assert.True(t, IsDependencyFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DEPENDENCY_FAILURE: dependency dep failed (node=dep): inner")

	collision := NewCollisionError("m", "s2", 1)
	assert.True(t, IsCollisionError(collision))
	assert.True(t, IsRoutingError(collision), "collisions are routing errors")
	assert.False(t, IsCollisionError(NewRoutingError("s", 2, 2)))
	assert.False(t, IsRoutingError(cause))
}
