package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CycleSummary counts what a run cycle wrote.
type CycleSummary struct {
	Cycle    string `json:"cycle" yaml:"cycle"`
	Records  int    `json:"records" yaml:"records"`
	Terminal int    `json:"terminal" yaml:"terminal"`
	FirstSeq int64  `json:"first_seq" yaml:"first_seq"`
	LastSeq  int64  `json:"last_seq" yaml:"last_seq"`
}

// ListCycles returns one summary per stored cycle, oldest first.
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListCycles(ctx context.Context) ([]CycleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.cycle, COUNT(*), MIN(r.seq), MAX(r.seq),
			(SELECT COUNT(*) FROM terminals t WHERE t.cycle = r.cycle)
		FROM records r
		GROUP BY r.cycle
		ORDER BY MIN(r.seq) ASC, r.cycle COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []CycleSummary{}
	for rows.Next() {
		var c CycleSummary
		if err := rows.Scan(&c.Cycle, &c.Records, &c.FirstSeq, &c.LastSeq, &c.Terminal); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// LastSeq returns the highest seq stored in any table, or 0 for an empty
// store. Used to resume the logical clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT MAX(seq) AS seq FROM records
			UNION ALL
			SELECT MAX(seq) AS seq FROM terminals
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}
