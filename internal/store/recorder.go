package store

import (
	"context"
	"fmt"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/engine"
)

// Recorder writes records to the store as an App produces them. It
// implements engine.Recorder.
//
// Thread-safety: the App calls the recorder from its run loop only; the
// underlying store serializes writes on a single connection.
type Recorder struct {
	store *Store
	clock engine.Sequencer
}

var _ engine.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder whose logical clock resumes after the
// highest seq already stored.
func NewRecorder(ctx context.Context, s *Store) (*Recorder, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	return &Recorder{store: s, clock: engine.NewClockAt(last)}, nil
}

// NewRecorderWithClock creates a recorder stamping rows from clock.
func NewRecorderWithClock(s *Store, clock engine.Sequencer) *Recorder {
	return &Recorder{store: s, clock: clock}
}

// RecordProduced implements engine.Recorder.
func (r *Recorder) RecordProduced(ctx context.Context, cycle string, rec *audit.Record) error {
	return r.store.WriteRecord(ctx, cycle, rec, r.clock.Next)
}

// RecordTerminal implements engine.Recorder.
func (r *Recorder) RecordTerminal(ctx context.Context, cycle, node string, rec *audit.Record) error {
	return r.store.WriteTerminal(ctx, cycle, node, rec, r.clock.Next)
}
