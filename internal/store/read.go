package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a record id is not stored.
var ErrNotFound = errors.New("record not found")

// StoredRecord is a record as read back from the store. Values and keys are
// decoded from canonical JSON.
type StoredRecord struct {
	ID       string   `json:"id" yaml:"id"`
	Cycle    string   `json:"cycle" yaml:"cycle"`
	Seq      int64    `json:"seq" yaml:"seq"`
	Producer string   `json:"producer" yaml:"producer"`
	Key      any      `json:"key,omitempty" yaml:"key,omitempty"`
	Keyed    bool     `json:"keyed,omitempty" yaml:"keyed,omitempty"`
	Value    any      `json:"value" yaml:"value"`
	Digest   string   `json:"digest" yaml:"digest"`
	Parents  []string `json:"parents" yaml:"parents"`
}

// Terminal is a record collected by the aggregator.
type Terminal struct {
	Node   string       `json:"node" yaml:"node"`
	Seq    int64        `json:"seq" yaml:"seq"`
	Record StoredRecord `json:"record" yaml:"record"`
}

const recordColumns = `id, cycle, seq, producer, record_key, value, digest`

// ReadRecord returns the record stored under id.
// Returns ErrNotFound if there is none.
func (s *Store) ReadRecord(ctx context.Context, id string) (StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return StoredRecord{}, err
	}

	parents, err := s.readParents(ctx, []string{id})
	if err != nil {
		return StoredRecord{}, err
	}
	rec.Parents = parents[id]
	return rec, nil
}

// ReadTrail returns the record stored under id and all of its ancestors,
// root first. Shared ancestors appear once.
// Returns ErrNotFound if id is not stored.
func (s *Store) ReadTrail(ctx context.Context, id string) ([]StoredRecord, error) {
	recs, err := s.queryRecords(ctx, `
		WITH RECURSIVE trail(id) AS (
			SELECT ?
			UNION
			SELECT p.parent_id FROM record_parents p JOIN trail t ON p.record_id = t.id
		)
		SELECT `+prefixed("r", recordColumns)+`
		FROM records r JOIN trail USING (id)
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read trail: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recs, nil
}

// ReadCycle returns every record first written in cycle, in write order.
// Returns an empty slice (not nil) for an unknown cycle.
func (s *Store) ReadCycle(ctx context.Context, cycle string) ([]StoredRecord, error) {
	recs, err := s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE cycle = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, cycle)
	if err != nil {
		return nil, fmt.Errorf("read cycle: %w", err)
	}
	return recs, nil
}

// ReadTerminal returns the records collected in cycle, in collection order.
// Returns an empty slice (not nil) for an unknown cycle.
func (s *Store) ReadTerminal(ctx context.Context, cycle string) ([]Terminal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.node, t.seq, `+prefixed("r", recordColumns)+`
		FROM terminals t JOIN records r ON r.id = t.record_id
		WHERE t.cycle = ?
		ORDER BY t.seq ASC, r.id COLLATE BINARY ASC
	`, cycle)
	if err != nil {
		return nil, fmt.Errorf("query terminals: %w", err)
	}
	defer rows.Close()

	terminals := []Terminal{}
	var ids []string
	for rows.Next() {
		var (
			t   Terminal
			raw rawRecord
		)
		if err := rows.Scan(&t.Node, &t.Seq, &raw.id, &raw.cycle, &raw.seq, &raw.producer, &raw.key, &raw.value, &raw.digest); err != nil {
			return nil, fmt.Errorf("scan terminal: %w", err)
		}
		if t.Record, err = raw.decode(); err != nil {
			return nil, err
		}
		terminals = append(terminals, t)
		ids = append(ids, t.Record.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terminals: %w", err)
	}

	parents, err := s.readParents(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range terminals {
		terminals[i].Record.Parents = parents[terminals[i].Record.ID]
	}
	return terminals, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []StoredRecord{}
	var ids []string
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	parents, err := s.readParents(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Parents = parents[recs[i].ID]
	}
	return recs, nil
}

// readParents returns the parent ids of each record, in position order.
// Records without parents map to an empty slice.
func (s *Store) readParents(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	for _, id := range ids {
		out[id] = []string{}
	}

	for start := 0; start < len(ids); start += parentBatch {
		chunk := ids[start:min(start+parentBatch, len(ids))]
		if err := s.readParentChunk(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parentBatch bounds the number of bound parameters per parent query.
const parentBatch = 500

func (s *Store) readParentChunk(ctx context.Context, ids []string, out map[string][]string) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, parent_id FROM record_parents
		WHERE record_id IN (`+placeholders(len(ids))+`)
		ORDER BY record_id COLLATE BINARY ASC, position ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query parents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return fmt.Errorf("scan parent: %w", err)
		}
		out[child] = append(out[child], parent)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate parents: %w", err)
	}
	return nil
}

// rawRecord holds the TEXT columns of a records row before decoding.
type rawRecord struct {
	id       string
	cycle    string
	seq      int64
	producer string
	key      sql.NullString
	value    string
	digest   string
}

func (r rawRecord) decode() (StoredRecord, error) {
	rec := StoredRecord{
		ID:       r.id,
		Cycle:    r.cycle,
		Seq:      r.seq,
		Producer: r.producer,
		Digest:   r.digest,
	}
	v, err := decodeValue(r.value)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("record %s: %w", r.id, err)
	}
	rec.Value = v

	if r.key.Valid {
		k, err := decodeValue(r.key.String)
		if err != nil {
			return StoredRecord{}, fmt.Errorf("record %s key: %w", r.id, err)
		}
		rec.Key, rec.Keyed = k, true
	}
	return rec, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (StoredRecord, error) {
	var raw rawRecord
	if err := row.Scan(&raw.id, &raw.cycle, &raw.seq, &raw.producer, &raw.key, &raw.value, &raw.digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredRecord{}, err
		}
		return StoredRecord{}, fmt.Errorf("scan record: %w", err)
	}
	return raw.decode()
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
