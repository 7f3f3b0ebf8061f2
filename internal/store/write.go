package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tapflow/internal/audit"
)

// WriteRecord stores rec and every ancestor that is not stored yet, in one
// transaction. Ancestors are written first, so parent rows always exist
// before the edges that point at them.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: records that are already
// stored (from this cycle or an earlier one) keep their original cycle and
// seq.
//
// seq is called once per inserted record and must be increasing.
func (s *Store) WriteRecord(ctx context.Context, cycle string, rec *audit.Record, seq func() int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	pending, err := unwritten(ctx, tx, rec)
	if err != nil {
		return fmt.Errorf("write record %s: %w", rec.ID(), err)
	}
	for _, r := range pending {
		if err := insertRecord(ctx, tx, cycle, r, seq()); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write record: commit: %w", err)
	}
	return nil
}

// WriteTerminal marks rec as collected under node in cycle. rec and its
// ancestors are written first if needed.
func (s *Store) WriteTerminal(ctx context.Context, cycle, node string, rec *audit.Record, seq func() int64) error {
	if err := s.WriteRecord(ctx, cycle, rec, seq); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terminals (cycle, node, record_id, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, cycle, node, rec.ID(), seq())
	if err != nil {
		return fmt.Errorf("write terminal %s: %w", rec.ID(), err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, cycle string, rec *audit.Record, seq int64) error {
	value, digest, err := marshalValue(rec.Value())
	if err != nil {
		return err
	}
	key, err := marshalKey(rec.Key())
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, cycle, seq, producer, record_key, value, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID(), cycle, seq, rec.Source(), key, value, digest)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}

	for i, p := range rec.Parents() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO record_parents (record_id, position, parent_id)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, rec.ID(), i, p.ID()); err != nil {
			return fmt.Errorf("insert parent edge: %w", err)
		}
	}
	return nil
}

// unwritten returns rec and its ancestors that are not stored yet, parents
// before children. The walk does not descend into stored records: their
// ancestors were stored with them.
func unwritten(ctx context.Context, tx *sql.Tx, rec *audit.Record) ([]*audit.Record, error) {
	type frame struct {
		rec     *audit.Record
		parents []*audit.Record
		next    int
	}

	var (
		out     []*audit.Record
		visited = make(map[string]bool)
		stack   []frame
	)
	push := func(r *audit.Record) error {
		if visited[r.ID()] {
			return nil
		}
		visited[r.ID()] = true
		stored, err := exists(ctx, tx, r.ID())
		if err != nil || stored {
			return err
		}
		stack = append(stack, frame{rec: r, parents: r.Parents()})
		return nil
	}

	if err := push(rec); err != nil {
		return nil, err
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.parents) {
			p := top.parents[top.next]
			top.next++
			if err := push(p); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, top.rec)
		stack = stack[:len(stack)-1]
	}
	return out, nil
}

func exists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup record %s: %w", id, err)
	}
	return true, nil
}
