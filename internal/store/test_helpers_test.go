package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tapflow/internal/testutil"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// producer names the producer of test records.
type producer string

func (p producer) Name() string   { return string(p) }
func (p producer) String() string { return string(p) }

// newTestRecorder returns a recorder stamping rows 1, 2, 3, ...
func newTestRecorder(s *Store) *Recorder {
	return NewRecorderWithClock(s, testutil.NewDeterministicClock())
}
