package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/canonical"
	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/join"
	"github.com/roach88/tapflow/internal/testutil"
)

func TestWriteRecord_WritesAncestorsFirst(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := newTestRecorder(s)

	root := audit.New(nil, "")
	child := audit.New(producer("a"), "a", root)
	require.NoError(t, rec.RecordProduced(ctx, "cycle-1", child))

	got, err := s.ReadRecord(ctx, child.ID())
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", got.Cycle)
	assert.Equal(t, int64(2), got.Seq)
	assert.Equal(t, "a", got.Producer)
	assert.Equal(t, "a", got.Value)
	assert.Equal(t, []string{root.ID()}, got.Parents)
	assert.Equal(t, canonical.Digest(canonical.DomainValue, []byte(`"a"`)), got.Digest)

	stored, err := s.ReadRecord(ctx, root.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Seq)
	assert.Equal(t, "input", stored.Producer)
	assert.Empty(t, stored.Parents)
	assert.NotNil(t, stored.Parents, "roots read back with an empty, non-nil parent list")
}

func TestWriteRecord_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := newTestRecorder(s)

	r := audit.New(producer("a"), 1)
	require.NoError(t, rec.RecordProduced(ctx, "cycle-1", r))
	require.NoError(t, rec.RecordProduced(ctx, "cycle-2", r))

	got, err := s.ReadRecord(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", got.Cycle, "first write wins")
	assert.Equal(t, int64(1), got.Seq)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestReadRecord_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRecord(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadTrail(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadTrail_Diamond(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := newTestRecorder(s)

	root := audit.New(nil, 1)
	a := audit.New(producer("a"), 2, root)
	b := audit.New(producer("b"), 3, root)
	m := audit.Merge(a, b)
	require.NoError(t, rec.RecordProduced(ctx, "c", m))

	trail, err := s.ReadTrail(ctx, m.ID())
	require.NoError(t, err)

	ids := make([]string, len(trail))
	for i, r := range trail {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{root.ID(), a.ID(), b.ID(), m.ID()}, ids)
	assert.Equal(t, []any{2, 3}, trail[3].Value)
	assert.Equal(t, []string{a.ID(), b.ID()}, trail[3].Parents, "parents keep merge order")
}

func TestReadTrail_DeepChain(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := newTestRecorder(s)

	r := audit.New(nil, 0)
	for i := 1; i < 1200; i++ {
		r = audit.New(producer("n"), i, r)
	}
	require.NoError(t, rec.RecordProduced(ctx, "c", r))

	trail, err := s.ReadTrail(ctx, r.ID())
	require.NoError(t, err)
	require.Len(t, trail, 1200)
	assert.Equal(t, 0, trail[0].Value)
	assert.Equal(t, 1199, trail[1199].Value)
}

func TestWriteRecord_KeysAndValues(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := newTestRecorder(s)

	arr := audit.New(producer("a"), []any{"x", 1.5, map[string]any{"k": true}})
	parts, err := arr.SplitAsArray()
	require.NoError(t, err)
	for _, p := range parts {
		require.NoError(t, rec.RecordProduced(ctx, "c", p))
	}

	got, err := s.ReadRecord(ctx, parts[2].ID())
	require.NoError(t, err)
	assert.True(t, got.Keyed)
	assert.Equal(t, 2, got.Key)
	assert.Equal(t, map[string]any{"k": true}, got.Value)

	whole, err := s.ReadRecord(ctx, arr.ID())
	require.NoError(t, err)
	assert.False(t, whole.Keyed)
	assert.Equal(t, []any{"x", 1.5, map[string]any{"k": true}}, whole.Value)
}

func TestWriteRecord_StructValue(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	r := audit.New(producer("p"), point{1, 2})
	require.NoError(t, newTestRecorder(s).RecordProduced(ctx, "c", r))

	got, err := s.ReadRecord(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, got.Value)
}

func TestWriteRecord_UnencodableValue(t *testing.T) {
	r := audit.New(producer("p"), func() {})
	err := newTestRecorder(createTestStore(t)).RecordProduced(context.Background(), "c", r)
	assert.ErrorContains(t, err, "marshal value")
}

func TestTerminalsAndCycles(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := newTestRecorder(s)

	r1 := audit.New(producer("a"), "one")
	r2 := audit.New(producer("b"), "two", r1)
	require.NoError(t, rec.RecordTerminal(ctx, "cycle-1", "b", r2))
	require.NoError(t, rec.RecordTerminal(ctx, "cycle-1", "b", r2), "idempotent")

	r3 := audit.New(producer("a"), "three")
	require.NoError(t, rec.RecordTerminal(ctx, "cycle-2", "a", r3))

	terms, err := s.ReadTerminal(ctx, "cycle-1")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "b", terms[0].Node)
	assert.Equal(t, "two", terms[0].Record.Value)
	assert.Equal(t, []string{r1.ID()}, terms[0].Record.Parents)

	empty, err := s.ReadTerminal(ctx, "cycle-9")
	require.NoError(t, err)
	assert.Empty(t, empty)

	cycles, err := s.ListCycles(ctx)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, CycleSummary{Cycle: "cycle-1", Records: 2, Terminal: 1, FirstSeq: 1, LastSeq: 2}, cycles[0])
	assert.Equal(t, "cycle-2", cycles[1].Cycle)

	recs, err := s.ReadCycle(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Greater(t, last, int64(4))
}

func TestNewRecorder_ResumesSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	require.NoError(t, NewRecorderWithClock(s, testutil.NewDeterministicClockAt(41)).
		RecordProduced(ctx, "c", audit.New(nil, 1)))

	rec, err := NewRecorder(ctx, s)
	require.NoError(t, err)
	r := audit.New(nil, 2)
	require.NoError(t, rec.RecordProduced(ctx, "c", r))

	got, err := s.ReadRecord(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(43), got.Seq)
}

func TestRecorder_WithApp(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	app := engine.New(
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTokenGenerator(testutil.NewFixedTokenGenerator("cycle-a")),
		engine.WithRecorder(newTestRecorder(s)),
	)
	appendName := func(ctx context.Context, inputs ...any) (any, error) {
		node, _ := engine.NodeFromContext(ctx)
		return fmt.Sprint(inputs[0]) + node.String(), nil
	}
	a, err := engine.NewTask(app, "a", appendName)
	require.NoError(t, err)
	b, err := engine.NewTask(app, "b", appendName)
	require.NoError(t, err)
	_, err = join.Sequence(app, []*engine.Task{a, b})
	require.NoError(t, err)

	app.Enqueue(a, "")
	require.NoError(t, app.Run(ctx))

	terms, err := s.ReadTerminal(ctx, "cycle-a")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "b", terms[0].Node)

	trail, err := s.ReadTrail(ctx, terms[0].Record.ID)
	require.NoError(t, err)
	values := make([]any, len(trail))
	for i, r := range trail {
		values[i] = r.Value
	}
	assert.Equal(t, []any{"", "a", "ab"}, values)
	assert.Equal(t, "input", trail[0].Producer)
	assert.Equal(t, "b", trail[2].Producer)
}
