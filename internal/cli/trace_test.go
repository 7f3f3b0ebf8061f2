package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tapflow/internal/store"
)

// recordRun runs the pipeline with input x into a fresh database.
func recordRun(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	opts := runOpts("text")
	opts.Inputs = []string{"x"}
	opts.Database = dbPath
	require.NoError(t, runWorkflow(opts, "testdata/pipeline.yaml", testCommand(&bytes.Buffer{})))
	return dbPath
}

func TestTrace_ListCycles(t *testing.T) {
	dbPath := recordRun(t)

	out, _, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Cycles ===")
	assert.Contains(t, out, "cycle-1  records=3 terminal=1 seq=1..3")
}

func TestTrace_ListCyclesJSON(t *testing.T) {
	dbPath := recordRun(t)

	out, _, err := execute(t, "trace", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse[[]store.CycleSummary](t, out)
	assert.Equal(t, []store.CycleSummary{{Cycle: "cycle-1", Records: 3, Terminal: 1, FirstSeq: 1, LastSeq: 3}}, resp.Data)
}

func TestTrace_Cycle(t *testing.T) {
	dbPath := recordRun(t)

	out, _, err := execute(t, "trace", "--db", dbPath, "--cycle", "cycle-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Cycle: cycle-1")
	assert.Contains(t, out, "=== Timeline ===\n"+
		"  [1] input = \"x\"\n"+
		"  [2] a = \"xa\" <- 1\n"+
		"  [3] b = \"xab\" <- 2\n")
	assert.Contains(t, out, "=== Terminal ===\n  [4] b = \"xab\" (record 3)\n")
	assert.Contains(t, out, "Producers: input, a, b")
}

func TestTrace_CycleJSON(t *testing.T) {
	dbPath := recordRun(t)

	out, _, err := execute(t, "trace", "--db", dbPath, "--cycle", "cycle-1", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse[TraceResult](t, out)
	assert.Equal(t, "cycle-1", resp.Cycle)
	require.Len(t, resp.Data.Timeline, 3)
	assert.Equal(t, "xab", resp.Data.Timeline[2].Value)
	require.Len(t, resp.Data.Terminal, 1)
	assert.Equal(t, "b", resp.Data.Terminal[0].Node)
	assert.Equal(t, TraceStats{Records: 3, Terminal: 1, Producers: []string{"input", "a", "b"}}, resp.Data.Stats)
}

func TestTrace_UnknownCycle(t *testing.T) {
	dbPath := recordRun(t)

	out, _, err := execute(t, "trace", "--db", dbPath, "--cycle", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "No records found for cycle: nope")
}

func TestTrace_Record(t *testing.T) {
	dbPath := recordRun(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	terminals, err := st.ReadTerminal(context.Background(), "cycle-1")
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, terminals, 1)
	id := terminals[0].Record.ID

	out, _, err := execute(t, "trace", "--db", dbPath, "--record", id, "--format", "json")
	require.NoError(t, err)
	resp := decodeResponse[TrailResult](t, out)
	assert.Equal(t, id, resp.Data.Record)
	require.Len(t, resp.Data.Trail, 3)
	assert.Equal(t, []any{"x", "xa", "xab"}, []any{resp.Data.Trail[0].Value, resp.Data.Trail[1].Value, resp.Data.Trail[2].Value})

	out, _, err = execute(t, "trace", "--db", dbPath, "--record", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Trail for Record: "+id)
	assert.Contains(t, out, "  [3] b = \"xab\" <- 2\n")
}

func TestTrace_RecordNotFound(t *testing.T) {
	dbPath := recordRun(t)

	out, _, err := execute(t, "trace", "--db", dbPath, "--record", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestTrace_MissingDatabase(t *testing.T) {
	_, _, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrace_FlagRules(t *testing.T) {
	_, _, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, _, err = execute(t, "trace", "--db", "x.db", "--cycle", "a", "--record", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}
