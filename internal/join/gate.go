package join

import (
	"context"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/config"
	"github.com/roach88/tapflow/internal/engine"
)

func gateSchema() *config.Schema {
	return config.NewSchema("gate").
		Int("limit", 0, config.Desc("records per flush, 0 for no limit"), config.Rules("gte=0"))
}

// Gate buffers source records and releases them as one array record once the
// queue has no other pending work, or every `limit` records when a limit is
// configured. A nil target sends flushed records to the aggregator under the
// gate task.
//
// The gate runs as its own task, named after the join, and is scheduled with
// deferred work items so that it never counts as pending work itself.
func Gate(app *engine.App, source, target *engine.Task, opts ...Option) (*Join, error) {
	var targets []*engine.Task
	if target != nil {
		targets = []*engine.Task{target}
	}
	j, err := newJoin(app, KindGate, []*engine.Task{source}, targets, opts)
	if err != nil {
		return nil, err
	}

	gate, err := engine.NewRecordTask(app, j.name, j.runGate,
		engine.WithConfig(gateSchema(), j.config),
		engine.WithDescription("gate on "+source.Name()),
	)
	if err != nil {
		return nil, err
	}
	j.gate = gate
	j.limit = gate.Config().Int("limit")

	if target != nil {
		gate.OnComplete(func(ctx context.Context, rec *audit.Record) error {
			return j.emit(ctx, target, rec)
		})
	}
	j.subscribe()
	return j, nil
}

// GateTask returns the task that flushes the gate, or nil for other kinds.
func (j *Join) GateTask() *engine.Task { return j.gate }

// Limit returns the gate flush size.
func (j *Join) Limit() int { return j.limit }

// Buffered returns the number of records held by the gate.
func (j *Join) Buffered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buffer)
}

// Reset drops buffered gate records and open sync merge combinations.
func (j *Join) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buffer = nil
	j.scheduled = false
	if j.combos != nil {
		clear(j.combos)
	}
}

// collect buffers rec and schedules the gate task unless a gate item is
// already queued. A queue cleared by Terminate drops the gate item, so the
// flag alone is not trusted.
func (j *Join) collect(rec *audit.Record) {
	j.mu.Lock()
	j.buffer = append(j.buffer, rec)
	schedule := !j.scheduled || !j.sched.Scheduled(j.gate)
	j.scheduled = true
	j.mu.Unlock()

	if schedule {
		j.logger.Debug("gate scheduled", "gate", j.name)
		j.sched.EnqueueDeferred(j.gate)
	}
}

// runGate flushes at most one chunk per run and reschedules itself while
// records remain that cannot be flushed yet.
func (j *Join) runGate(_ context.Context, _ []*audit.Record) (*audit.Record, error) {
	j.mu.Lock()

	if len(j.buffer) == 0 {
		j.scheduled = false
		j.mu.Unlock()
		j.logger.Warn("gate ran with an empty buffer", "gate", j.name)
		return nil, nil
	}

	var chunk []*audit.Record
	switch {
	case j.limit > 0 && len(j.buffer) >= j.limit:
		chunk = j.buffer[:j.limit:j.limit]
		j.buffer = append([]*audit.Record(nil), j.buffer[j.limit:]...)
	case j.sched.Pending() > 0:
		// Upstream work may still add records; wait behind it.
		j.mu.Unlock()
		j.sched.EnqueueDeferred(j.gate)
		return nil, nil
	default:
		chunk = j.buffer
		j.buffer = nil
	}

	reschedule := len(j.buffer) > 0
	j.scheduled = reschedule
	j.mu.Unlock()

	if reschedule {
		j.sched.EnqueueDeferred(j.gate)
	}

	values := make([]any, len(chunk))
	for i, r := range chunk {
		values[i] = r.Value()
	}
	j.logger.Debug("gate flushed", "gate", j.name, "records", len(chunk))
	return audit.New(j.gate, values, chunk...), nil
}
