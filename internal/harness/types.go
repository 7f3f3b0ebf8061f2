package harness

// Trace event types.
const (
	EventRecord   = "record"
	EventTerminal = "terminal"
)

// TraceEvent is one row of the audit trace: a produced record, or a record
// collected as a terminal result. Record ids are not deterministic, so
// parents are referenced by the seq they were written at.
type TraceEvent struct {
	Type    string  `json:"type"`
	Seq     int64   `json:"seq"`
	Node    string  `json:"node"`
	Key     any     `json:"key,omitempty"`
	Value   any     `json:"value"`
	Parents []int64 `json:"parents,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Cycle is the run-cycle token the scenario ran under.
	Cycle string `json:"cycle"`

	// Trace holds records and terminal events in seq order.
	Trace []TraceEvent `json:"trace"`

	// Terminal holds the collected values per node display name.
	Terminal map[string][]any `json:"terminal"`

	// RunError is the error the run halted with, if any.
	RunError string `json:"run_error,omitempty"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(cycle string) *Result {
	return &Result{
		Pass:     true,
		Cycle:    cycle,
		Trace:    []TraceEvent{},
		Terminal: make(map[string][]any),
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// records returns the record events produced by node, in trace order.
func (r *Result) records(node string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventRecord && e.Node == node {
			out = append(out, e)
		}
	}
	return out
}
