package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tapflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Cycle    string // optional - timeline of one cycle
	Record   string // optional - trail of one record
}

// TraceResult holds the timeline of one cycle.
type TraceResult struct {
	Cycle    string               `json:"cycle" yaml:"cycle"`
	Timeline []store.StoredRecord `json:"timeline" yaml:"timeline"`
	Terminal []store.Terminal     `json:"terminal" yaml:"terminal"`
	Stats    TraceStats           `json:"stats" yaml:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Records   int      `json:"records" yaml:"records"`
	Terminal  int      `json:"terminal" yaml:"terminal"`
	Producers []string `json:"producers" yaml:"producers"`
}

// TrailResult holds the trail of one record, root first.
type TrailResult struct {
	Record string               `json:"record" yaml:"record"`
	Trail  []store.StoredRecord `json:"trail" yaml:"trail"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the audit store",
		Long: `Query the SQLite audit store written by "tapflow run --db".

Without --cycle or --record, lists the stored cycles. With --cycle, shows
every record the cycle produced in write order, followed by its terminal
results. With --record, shows the record's trail: the record and all of its
ancestors, root first.

Examples:
  tapflow trace --db ./audit.db
  tapflow trace --db ./audit.db --cycle 0190a1b2-...
  tapflow trace --db ./audit.db --record 0190a1b2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit store (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Cycle, "cycle", "", "cycle token to trace")
	cmd.Flags().StringVar(&opts.Record, "record", "", "record id to show the trail of")
	cmd.MarkFlagsMutuallyExclusive("cycle", "record")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// store.Open creates missing files; a trace of nothing is a usage error.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case opts.Record != "":
		return traceRecord(ctx, st, opts.Record, formatter)
	case opts.Cycle != "":
		return traceCycle(ctx, st, opts.Cycle, formatter)
	default:
		return listCycles(ctx, st, formatter)
	}
}

func listCycles(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	cycles, err := st.ListCycles(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list cycles", err)
	}
	if formatter.Structured() {
		return formatter.Success(cycles)
	}

	w := formatter.Writer
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No cycles stored.")
		return nil
	}
	fmt.Fprintln(w, "=== Cycles ===")
	for _, c := range cycles {
		fmt.Fprintf(w, "  %s  records=%d terminal=%d seq=%d..%d\n", c.Cycle, c.Records, c.Terminal, c.FirstSeq, c.LastSeq)
	}
	return nil
}

func traceCycle(ctx context.Context, st *store.Store, cycle string, formatter *OutputFormatter) error {
	records, err := st.ReadCycle(ctx, cycle)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cycle", err)
	}
	terminals, err := st.ReadTerminal(ctx, cycle)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read terminal results", err)
	}

	result := TraceResult{
		Cycle:    cycle,
		Timeline: records,
		Terminal: terminals,
		Stats: TraceStats{
			Records:   len(records),
			Terminal:  len(terminals),
			Producers: producers(records),
		},
	}

	if formatter.Structured() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, Cycle: cycle})
	}
	if len(records) == 0 && len(terminals) == 0 {
		fmt.Fprintf(formatter.Writer, "No records found for cycle: %s\n", cycle)
		return nil
	}
	outputTraceText(formatter.Writer, result, formatter.Verbose)
	return nil
}

func traceRecord(ctx context.Context, st *store.Store, id string, formatter *OutputFormatter) error {
	trail, err := st.ReadTrail(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "record not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trail", err)
	}

	if formatter.Structured() {
		return formatter.Success(TrailResult{Record: id, Trail: trail})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Trail for Record: %s\n", id)
	refs := seqIndex(trail)
	for _, rec := range trail {
		formatStoredRecord(w, rec, refs, formatter.Verbose)
	}
	return nil
}

// outputTraceText outputs a cycle trace as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Cycle: %s\n", result.Cycle)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	refs := seqIndex(result.Timeline)
	for _, rec := range result.Timeline {
		formatStoredRecord(w, rec, refs, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Terminal ===")
	if len(result.Terminal) == 0 {
		fmt.Fprintln(w, "  (no terminal results)")
	}
	for _, t := range result.Terminal {
		fmt.Fprintf(w, "  [%d] %s = %s (record %s)\n", t.Seq, t.Node, formatValue(t.Record.Value), recordRef(t.Record.ID, refs))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Records:   %d\n", result.Stats.Records)
	fmt.Fprintf(w, "  Terminal:  %d\n", result.Stats.Terminal)
	fmt.Fprintf(w, "  Producers: %s\n", strings.Join(result.Stats.Producers, ", "))
}

// formatStoredRecord writes one record line. Parents are shown by seq when
// they are part of the listing, by truncated id otherwise.
func formatStoredRecord(w io.Writer, rec store.StoredRecord, refs map[string]int64, verbose bool) {
	var line strings.Builder
	fmt.Fprintf(&line, "  [%d] %s", rec.Seq, rec.Producer)
	if rec.Keyed {
		fmt.Fprintf(&line, "[%s]", formatValue(rec.Key))
	}
	line.WriteString(" = ")
	line.WriteString(formatValue(rec.Value))

	if len(rec.Parents) > 0 {
		parents := make([]string, len(rec.Parents))
		for i, p := range rec.Parents {
			parents[i] = recordRef(p, refs)
		}
		line.WriteString(" <- ")
		line.WriteString(strings.Join(parents, ", "))
	}
	fmt.Fprintln(w, line.String())

	if verbose {
		fmt.Fprintf(w, "       ID: %s\n", rec.ID)
		fmt.Fprintf(w, "       Digest: %s\n", truncateID(rec.Digest))
	}
}

func seqIndex(records []store.StoredRecord) map[string]int64 {
	refs := make(map[string]int64, len(records))
	for _, r := range records {
		refs[r.ID] = r.Seq
	}
	return refs
}

func recordRef(id string, refs map[string]int64) string {
	if seq, ok := refs[id]; ok {
		return strconv.FormatInt(seq, 10)
	}
	return truncateID(id)
}

// producers returns the distinct producers in first-seen order.
func producers(records []store.StoredRecord) []string {
	out := []string{}
	for _, r := range records {
		if !slices.Contains(out, r.Producer) {
			out = append(out, r.Producer)
		}
	}
	return out
}

// formatValue formats a value for display, handling nested structures
// deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, formatValue(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return strconv.Quote(val)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(l)
	}
	return b.String()
}
