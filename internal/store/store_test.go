package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"records", "record_parents", "terminals"} {
		assert.NotEmpty(t, tableColumns(t, s.db, table), "table %s", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/audit.db")
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	last, err := s.LastSeq(t.Context())
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestClose_ZeroStore(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)
	require.NotNil(t, s.DB())
	assert.NoError(t, s.DB().Ping())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := s.pragma(name)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{"id", "cycle", "seq", "producer", "record_key", "value", "digest"},
		tableColumns(t, s.db, "records"))
	assert.Equal(t, []string{"record_id", "position", "parent_id"},
		tableColumns(t, s.db, "record_parents"))
	assert.Equal(t, []string{"cycle", "node", "record_id", "seq"},
		tableColumns(t, s.db, "terminals"))
}

func TestConstraint_ParentEdgeNeedsRecords(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO record_parents (record_id, position, parent_id)
		VALUES ('missing-child', 0, 'missing-parent')`)
	assert.Error(t, err, "parent edges reference stored records")
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
	assert.Equal(t, 2, currentSchemaVersion)
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	indexes := tableIndexes(t, s.db, "records")
	assert.Contains(t, indexes, "idx_records_digest")
	assert.Contains(t, indexes, "idx_records_producer")
}

func TestMigration_ResumesFromV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	indexes := tableIndexes(t, s.db, "records")
	assert.Contains(t, indexes, "idx_records_producer")
	assert.NotContains(t, indexes, "idx_records_digest", "v1 steps are not re-run")
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	return indexes
}
