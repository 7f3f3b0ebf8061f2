package engine

import (
	"slices"
	"sync"

	"github.com/roach88/tapflow/internal/audit"
)

// Aggregator collects terminal records keyed by the node they ended at.
// A record lands here when its node has no completion callbacks, or when a
// join routes it here explicitly.
//
// Thread-safety: safe for concurrent use; hosts read it while a run loop
// writes to it.
type Aggregator struct {
	mu      sync.Mutex
	order   []*Task
	results map[*Task][]*audit.Record
	total   int
}

func newAggregator() *Aggregator {
	return &Aggregator{results: make(map[*Task][]*audit.Record)}
}

// Add stores rec under node.
func (a *Aggregator) Add(node *Task, rec *audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.results[node]; !ok {
		a.order = append(a.order, node)
	}
	a.results[node] = append(a.results[node], rec)
	a.total++
}

// Nodes returns the nodes holding results, in first-arrival order.
func (a *Aggregator) Nodes() []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.order)
}

// Results returns the records collected for node in arrival order.
func (a *Aggregator) Results(node *Task) []*audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.results[node])
}

// Values returns the values of the records collected for node.
func (a *Aggregator) Values(node *Task) []any {
	records := a.Results(node)
	values := make([]any, len(records))
	for i, r := range records {
		values[i] = r.Value()
	}
	return values
}

// All returns every collected record in arrival order per node, nodes in
// first-arrival order.
func (a *Aggregator) All() []*audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*audit.Record, 0, a.total)
	for _, n := range a.order {
		out = append(out, a.results[n]...)
	}
	return out
}

// Snapshot returns the results keyed by node display name. Batch members of
// one task are kept apart ("b(0)", "b(1)").
func (a *Aggregator) Snapshot() map[string][]*audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]*audit.Record, len(a.order))
	for _, n := range a.order {
		key := n.String()
		out[key] = append(out[key], a.results[n]...)
	}
	return out
}

// Len returns the total number of collected records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Clear drops all results.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = nil
	clear(a.results)
	a.total = 0
}
