package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/tapflow/internal/audit"
)

// Sequencer stamps work items. Implemented by *Clock and by the
// deterministic test clock.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Recorder observes records as the run loop produces them. The SQLite audit
// store implements it.
type Recorder interface {
	// RecordProduced is called once for every record a node produces,
	// dependencies included.
	RecordProduced(ctx context.Context, cycle string, rec *audit.Record) error

	// RecordTerminal is called when a record is collected by the aggregator.
	RecordTerminal(ctx context.Context, cycle, node string, rec *audit.Record) error
}

// Info is a point-in-time view of an App for hosts.
type Info struct {
	State      State  `json:"state" yaml:"state"`
	Cycle      string `json:"cycle" yaml:"cycle"`
	QueueDepth int    `json:"queue_depth" yaml:"queue_depth"`
	Pending    int    `json:"pending" yaml:"pending"`
	Processed  int64  `json:"processed" yaml:"processed"`
	Terminal   int    `json:"terminal" yaml:"terminal"`
}

// App owns the work queue and the single-consumer run loop.
//
// Work items are processed one at a time in FIFO order. Completion callbacks
// (joins) run synchronously on the loop goroutine and enqueue downstream
// work, which the same loop picks up: dispatch is iterative, never recursive.
//
// Thread-safety model:
//   - Enqueue, Stop, Terminate, Info, Aggregator: safe from any goroutine
//   - Run, Serve: one at a time; a second call returns ErrAlreadyRunning
type App struct {
	queue      *workQueue
	clock      Sequencer
	tokens     TokenGenerator
	logger     *slog.Logger
	metrics    *Metrics
	recorder   Recorder
	resolver   *resolver
	aggregator *Aggregator
	quota      quota

	mu    sync.Mutex
	state State
	cycle string

	sig       atomic.Int32
	processed atomic.Int64
}

// AppOption configures an App.
type AppOption func(*App)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) AppOption {
	return func(a *App) { a.logger = l }
}

// WithClock sets the sequencer used to stamp work items.
func WithClock(c Sequencer) AppOption {
	return func(a *App) { a.clock = c }
}

// WithTokenGenerator sets the run-cycle token generator.
// Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) AppOption {
	return func(a *App) { a.tokens = g }
}

// WithMetrics sets the Prometheus instruments. Default: unregistered.
func WithMetrics(m *Metrics) AppOption {
	return func(a *App) { a.metrics = m }
}

// WithRecorder attaches a recorder notified of every produced record.
func WithRecorder(r Recorder) AppOption {
	return func(a *App) { a.recorder = r }
}

// WithMaxSteps limits how many work items one run cycle may dispatch.
// Exceeding it fails the run with QUOTA_EXCEEDED. Default: 0 (unlimited).
func WithMaxSteps(n int) AppOption {
	return func(a *App) { a.quota.maxSteps = int64(n) }
}

// New creates an App in StateReady with a fresh run cycle.
func New(opts ...AppOption) *App {
	a := &App{
		queue:      newWorkQueue(),
		clock:      NewClock(),
		tokens:     UUIDv7Generator{},
		logger:     slog.Default(),
		resolver:   newResolver(),
		aggregator: newAggregator(),
		state:      StateReady,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(nil)
	}
	a.cycle = a.tokens.Generate()
	return a
}

// Enqueue appends one work item per batch member of node, in batch order.
// Raw inputs become root audit records; *audit.Record inputs are kept as is.
//
// Enqueue is valid in any state and from any goroutine, including from inside
// a running node. Returns nil if the App has been closed.
func (a *App) Enqueue(node *Task, inputs ...any) []*WorkItem {
	items, _ := a.enqueue(node, false, inputs)
	return items
}

// EnqueueDeferred is Enqueue for self-scheduled join work. Deferred items
// are not counted by Pending.
func (a *App) EnqueueDeferred(node *Task, inputs ...any) []*WorkItem {
	items, _ := a.enqueue(node, true, inputs)
	return items
}

// Submit is Enqueue for hosts that need to distinguish a closed App.
func (a *App) Submit(node *Task, inputs ...any) ([]*WorkItem, error) {
	return a.enqueue(node, false, inputs)
}

func (a *App) enqueue(node *Task, deferred bool, inputs []any) ([]*WorkItem, error) {
	records := promote(inputs)
	members := node.Members()

	items := make([]*WorkItem, len(members))
	for i, m := range members {
		items[i] = &WorkItem{Node: m, Inputs: records, Deferred: deferred}
	}
	if !a.queue.EnqueueBatch(items, a.clock.Next) {
		a.logger.Warn("enqueue rejected: queue closed", "node", node.String())
		return nil, ErrQueueClosed
	}
	a.metrics.QueueDepth.Set(float64(a.queue.Len()))
	return items, nil
}

func promote(inputs []any) []*audit.Record {
	records := make([]*audit.Record, len(inputs))
	for i, in := range inputs {
		if rec, ok := in.(*audit.Record); ok {
			records[i] = rec
			continue
		}
		records[i] = audit.New(nil, in)
	}
	return records
}

// Pending returns the number of queued items that are not deferred.
func (a *App) Pending() int {
	return a.queue.Pending()
}

// Queued returns a snapshot of the queue in FIFO order.
func (a *App) Queued() []*WorkItem {
	return a.queue.Snapshot()
}

// Scheduled reports whether a work item for node (this exact batch member)
// is waiting in the queue.
func (a *App) Scheduled(node *Task) bool {
	return a.queue.Contains(node)
}

// Collect hands rec to the aggregator under node and notifies the recorder.
func (a *App) Collect(ctx context.Context, node *Task, rec *audit.Record) error {
	a.aggregator.Add(node, rec)
	a.metrics.TerminalTotal.WithLabelValues(node.Name()).Inc()

	if a.recorder != nil {
		if err := a.recorder.RecordTerminal(ctx, a.Cycle(), node.String(), rec); err != nil {
			return fmt.Errorf("record terminal %s: %w", rec.ID(), err)
		}
	}
	return nil
}

// Aggregator returns the terminal result collector.
func (a *App) Aggregator() *Aggregator {
	return a.aggregator
}

// Logger returns the App's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Cycle returns the current run-cycle token.
func (a *App) Cycle() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cycle
}

// State returns the current run-loop state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Info returns the current state, cycle and counters.
func (a *App) Info() Info {
	a.mu.Lock()
	state, cycle := a.state, a.cycle
	a.mu.Unlock()

	return Info{
		State:      state,
		Cycle:      cycle,
		QueueDepth: a.queue.Len(),
		Pending:    a.queue.Pending(),
		Processed:  a.processed.Load(),
		Terminal:   a.aggregator.Len(),
	}
}

// DependencyResult returns the record a dependency produced this cycle.
func (a *App) DependencyResult(node *Task) (*audit.Record, bool) {
	st := a.resolver.status(node)
	if st.status != depComplete {
		return nil, false
	}
	return st.result, true
}

// ResetDependencies clears dependency completion for nodes, or for every node
// when none are given, so they run again on next use.
func (a *App) ResetDependencies(nodes ...*Task) {
	a.resolver.reset(nodes...)
}

// Reset starts a new run cycle: a new cycle token, cleared dependency state
// and an empty aggregator. Queued work is kept.
func (a *App) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateRunning || a.state == StateStopping {
		return ErrAlreadyRunning
	}
	a.cycle = a.tokens.Generate()
	a.state = StateReady
	a.resolver.reset()
	a.aggregator.Clear()
	a.processed.Store(0)
	a.quota.reset()
	return nil
}

// Stop asks an active run to return after the in-flight item. Remaining items
// stay queued. Safe from any goroutine; a no-op when no run is active.
func (a *App) Stop() {
	a.mu.Lock()
	if a.state == StateRunning {
		a.state = StateStopping
		a.sig.Store(int32(signalStop))
	}
	a.mu.Unlock()
	a.queue.Wake()
}

// Terminate halts an active run before the next item and discards the queue.
// Without an active run the queue is discarded immediately.
func (a *App) Terminate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateRunning, StateStopping:
		a.sig.Store(int32(signalTerminate))
		a.queue.Wake()
	default:
		dropped := a.queue.Clear()
		a.state = StateTerminated
		a.metrics.QueueDepth.Set(0)
		a.logger.Info("terminated", "dropped", dropped)
	}
}

// Close rejects further enqueues and lets Serve return once the queue drains.
func (a *App) Close() {
	a.queue.Close()
}

type outcome int

const (
	outcomeDrained outcome = iota
	outcomeStopped
	outcomeTerminated
	outcomeCancelled
	outcomeFailed
)

// Run drains the queue until it is empty or a signal is observed between
// items. Errors from a node, a dependency or a completion callback halt the
// loop in StateTerminated and leave the remaining queue untouched.
// Cancelling ctx behaves like Stop and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	if err := a.begin(); err != nil {
		return err
	}
	a.logger.Info("run starting", "cycle", a.Cycle(), "queue_depth", a.queue.Len())

	out, err := a.drain(ctx)
	return a.finish(out, err)
}

// Serve is Run for long-lived hosts: after draining it waits for new work
// until ctx is cancelled, the App is closed, or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	if err := a.begin(); err != nil {
		return err
	}
	a.logger.Info("serve starting", "cycle", a.Cycle())

	for {
		out, err := a.drain(ctx)
		if out != outcomeDrained {
			return a.finish(out, err)
		}

		select {
		case <-ctx.Done():
			return a.finish(outcomeCancelled, ctx.Err())

		case <-a.queue.Wait():
			// The signal channel closes with the queue, so a closed queue
			// lands here immediately once drained.
			if a.queue.Closed() && a.queue.Len() == 0 {
				a.logger.Info("serve stopping: queue closed")
				return a.finish(outcomeDrained, nil)
			}
		}
	}
}

func (a *App) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateRunning || a.state == StateStopping {
		return ErrAlreadyRunning
	}
	a.sig.Store(int32(signalNone))
	a.state = StateRunning
	return nil
}

func (a *App) finish(out outcome, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch out {
	case outcomeFailed:
		a.state = StateTerminated
		a.logger.Error("run failed", "cycle", a.cycle, "queue_depth", a.queue.Len(), "error", err)
	case outcomeTerminated:
		dropped := a.queue.Clear()
		a.state = StateTerminated
		a.logger.Info("run terminated", "cycle", a.cycle, "dropped", dropped)
	case outcomeStopped:
		a.state = StateReady
		a.logger.Info("run stopped", "cycle", a.cycle, "queue_depth", a.queue.Len())
	case outcomeCancelled:
		a.state = StateReady
		a.logger.Info("run stopping: context cancelled", "cycle", a.cycle)
	default:
		a.state = StateReady
		a.logger.Info("run complete", "cycle", a.cycle, "processed", a.processed.Load())
	}
	a.sig.Store(int32(signalNone))
	a.metrics.QueueDepth.Set(float64(a.queue.Len()))
	return err
}

func (a *App) drain(ctx context.Context) (outcome, error) {
	for {
		switch signal(a.sig.Load()) {
		case signalStop:
			return outcomeStopped, nil
		case signalTerminate:
			return outcomeTerminated, nil
		}
		if err := ctx.Err(); err != nil {
			return outcomeCancelled, err
		}

		item, ok := a.queue.TryDequeue()
		if !ok {
			return outcomeDrained, nil
		}
		a.metrics.QueueDepth.Set(float64(a.queue.Len()))

		if err := a.dispatch(ctx, item); err != nil {
			logItemError(a.logger, item, err)
			return outcomeFailed, err
		}
	}
}

// dispatch resolves the item's dependencies, invokes its node and notifies
// completion. Called only from the run loop goroutine.
func (a *App) dispatch(ctx context.Context, item *WorkItem) (err error) {
	node := item.Node
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.DispatchTotal.WithLabelValues(node.Name(), status).Inc()
		a.metrics.DispatchDuration.WithLabelValues(node.Name()).Observe(time.Since(start).Seconds())
	}()

	ctx = withNode(withApp(ctx, a), node)
	a.logger.Debug("dispatching",
		"node", node.String(),
		"seq", item.Seq,
		"inputs", len(item.Inputs),
		"deferred", item.Deferred,
	)

	if err := a.quota.check(node.String()); err != nil {
		return err
	}
	if err := a.resolver.resolve(ctx, a.runDependency, node); err != nil {
		return err
	}

	rec, err := node.invoke(ctx, item.Inputs)
	if err != nil {
		return fmt.Errorf("node %s: %w", node, err)
	}
	a.processed.Add(1)

	if rec == nil {
		return nil
	}
	return a.complete(ctx, node, rec)
}

// runDependency invokes a dependency with its static args. Dependencies never
// fire completion callbacks and never reach the aggregator.
func (a *App) runDependency(ctx context.Context, dep *Task, args []any) (*audit.Record, error) {
	a.logger.Debug("resolving dependency", "node", dep.String(), "args", len(args))

	rec, err := dep.invoke(withNode(ctx, dep), promote(args))
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := a.recordProduced(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// complete notifies node's callbacks in registration order, or collects rec
// when node has none.
func (a *App) complete(ctx context.Context, node *Task, rec *audit.Record) error {
	if err := a.recordProduced(ctx, rec); err != nil {
		return err
	}

	callbacks := node.completions()
	if len(callbacks) == 0 {
		return a.Collect(ctx, node, rec)
	}
	for _, cb := range callbacks {
		if err := cb(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) recordProduced(ctx context.Context, rec *audit.Record) error {
	if a.recorder == nil {
		return nil
	}
	if err := a.recorder.RecordProduced(ctx, a.Cycle(), rec); err != nil {
		return fmt.Errorf("record %s: %w", rec.ID(), err)
	}
	return nil
}

// logItemError logs a work item failure with enough context to find the
// item again in the audit store.
func logItemError(logger *slog.Logger, item *WorkItem, err error) {
	inputs := make([]string, len(item.Inputs))
	for i, in := range item.Inputs {
		inputs[i] = in.ID()
	}
	logger.Error("work item failed",
		"error", err,
		"node", item.Node.String(),
		"seq", item.Seq,
		"inputs", inputs,
		"deferred", item.Deferred,
	)
}
