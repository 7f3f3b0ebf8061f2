package join

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/engine"
)

// Kind identifies a join variant.
type Kind int

const (
	KindSequence Kind = iota + 1
	KindFork
	KindMerge
	KindSyncMerge
	KindSwitch
	KindGate
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindFork:
		return "fork"
	case KindMerge:
		return "merge"
	case KindSyncMerge:
		return "sync_merge"
	case KindSwitch:
		return "switch"
	case KindGate:
		return "gate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a kind name as written in workflow files to a Kind.
func ParseKind(s string) (Kind, error) {
	for k := KindSequence; k <= KindGate; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown join kind %q", s)
}

// Scheduler is what a join needs from the engine: a way to schedule work and
// to hand records to the terminal aggregator. *engine.App implements it.
type Scheduler interface {
	Enqueue(node *engine.Task, inputs ...any) []*engine.WorkItem
	EnqueueDeferred(node *engine.Task, inputs ...any) []*engine.WorkItem
	Pending() int
	Scheduled(node *engine.Task) bool
	Collect(ctx context.Context, node *engine.Task, rec *audit.Record) error
}

// Selector maps a record to a switch target index. Returning false sends the
// record to the aggregator instead of any target.
type Selector func(rec *audit.Record) (int, bool)

// Transform rewrites a record before a join emits it.
type Transform func(rec *audit.Record) (*audit.Record, error)

// Option configures a join.
type Option func(*options)

type options struct {
	iterate   bool
	transform Transform
	name      string
	config    map[string]any
	logger    *slog.Logger
}

// WithIterate splits array records and emits one work item per element.
func WithIterate() Option {
	return func(o *options) { o.iterate = true }
}

// WithTransform rewrites every record before it is emitted.
func WithTransform(fn Transform) Option {
	return func(o *options) { o.transform = fn }
}

// WithName names the join. For gates it is also the name of the gate task.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithConfig passes raw configuration for joins that take any (gates).
func WithConfig(raw map[string]any) Option {
	return func(o *options) {
		if o.config == nil {
			o.config = make(map[string]any, len(raw))
		}
		maps.Copy(o.config, raw)
	}
}

// WithLimit sets a gate's flush size. 0 means no limit.
func WithLimit(n int) Option {
	return WithConfig(map[string]any{"limit": n})
}

// WithLogger sets the logger. Default: the App's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Join connects source node completions to target node work items.
//
// All six variants share this type; Kind selects the behavior. Join state
// (synchronized merge slots, gate buffer) is mutex guarded.
type Join struct {
	kind      Kind
	name      string
	sched     Scheduler
	logger    *slog.Logger
	sources   []*engine.Task
	targets   []*engine.Task
	iterate   bool
	transform Transform
	selector  Selector
	config    map[string]any

	mu sync.Mutex

	// sync merge: member counts per source and open combinations
	sizes  []int
	combos map[string][]*audit.Record

	// gate
	gate      *engine.Task
	limit     int
	buffer    []*audit.Record
	scheduled bool
}

func newJoin(app *engine.App, kind Kind, sources, targets []*engine.Task, opts []Option) (*Join, error) {
	if app == nil {
		return nil, fmt.Errorf("%s: app is nil", kind)
	}
	for _, n := range slices.Concat(sources, targets) {
		if n == nil {
			return nil, fmt.Errorf("%s: nil node", kind)
		}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = app.Logger()
	}

	j := &Join{
		kind:      kind,
		name:      o.name,
		sched:     app,
		logger:    o.logger.With("join", kind.String()),
		sources:   slices.Clone(sources),
		targets:   slices.Clone(targets),
		iterate:   o.iterate,
		transform: o.transform,
		config:    o.config,
	}
	if j.name == "" {
		j.name = defaultName(kind, sources)
	}
	if kind != KindGate && len(o.config) > 0 {
		return nil, fmt.Errorf("%s %s: configuration is only accepted by gates", kind, j.name)
	}
	return j, nil
}

func defaultName(kind Kind, sources []*engine.Task) string {
	if len(sources) == 0 {
		return kind.String()
	}
	return fmt.Sprintf("%s.%s", sources[0].Name(), kind)
}

// Sequence chains nodes: each node's completion enqueues the next node with
// the produced record.
func Sequence(app *engine.App, nodes []*engine.Task, opts ...Option) (*Join, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("sequence needs at least two nodes, got %d", len(nodes))
	}
	j, err := newJoin(app, KindSequence, nodes[:len(nodes)-1], nodes[1:], opts)
	if err != nil {
		return nil, err
	}
	j.subscribe()
	return j, nil
}

// Fork enqueues every source record on each target, in target order.
func Fork(app *engine.App, source *engine.Task, targets []*engine.Task, opts ...Option) (*Join, error) {
	if len(targets) == 0 {
		return nil, errors.New("fork needs at least one target")
	}
	j, err := newJoin(app, KindFork, []*engine.Task{source}, targets, opts)
	if err != nil {
		return nil, err
	}
	j.subscribe()
	return j, nil
}

// Merge enqueues target as soon as any source completes.
func Merge(app *engine.App, target *engine.Task, sources []*engine.Task, opts ...Option) (*Join, error) {
	if len(sources) == 0 {
		return nil, errors.New("merge needs at least one source")
	}
	j, err := newJoin(app, KindMerge, sources, []*engine.Task{target}, opts)
	if err != nil {
		return nil, err
	}
	j.subscribe()
	return j, nil
}

// SyncMerge waits for one record from every source, then enqueues target
// with their merge in source order.
//
// Batched sources are combined by Cartesian product: every combination of
// batch members has its own slots and fires independently. Filling a slot
// that is already filled fails the run with a COLLISION error.
//
// Sources must be batched before the join is created.
func SyncMerge(app *engine.App, target *engine.Task, sources []*engine.Task, opts ...Option) (*Join, error) {
	if len(sources) == 0 {
		return nil, errors.New("sync merge needs at least one source")
	}
	j, err := newJoin(app, KindSyncMerge, sources, []*engine.Task{target}, opts)
	if err != nil {
		return nil, err
	}
	j.sizes = make([]int, len(sources))
	for i, s := range sources {
		j.sizes[i] = len(s.Members())
	}
	j.combos = make(map[string][]*audit.Record)
	j.subscribe()
	return j, nil
}

// Switch routes each source record to the target chosen by selector. A
// selector that declines sends the record to the aggregator under the source
// node; an index without a target fails the run with a ROUTING error.
func Switch(app *engine.App, source *engine.Task, targets []*engine.Task, selector Selector, opts ...Option) (*Join, error) {
	if selector == nil {
		return nil, errors.New("switch needs a selector")
	}
	j, err := newJoin(app, KindSwitch, []*engine.Task{source}, targets, opts)
	if err != nil {
		return nil, err
	}
	j.selector = selector
	j.subscribe()
	return j, nil
}

// Kind returns the join variant.
func (j *Join) Kind() Kind { return j.kind }

// Name returns the join name.
func (j *Join) Name() string { return j.name }

// Sources returns the source nodes.
func (j *Join) Sources() []*engine.Task { return slices.Clone(j.sources) }

// Targets returns the target nodes. A gate without target has none.
func (j *Join) Targets() []*engine.Task { return slices.Clone(j.targets) }

// String implements fmt.Stringer.
func (j *Join) String() string {
	return fmt.Sprintf("%s(%s)", j.kind, j.name)
}

// subscribe registers the join once on each batch member of every source,
// so a member's completion carries its own batch index.
func (j *Join) subscribe() {
	for i, src := range j.sources {
		for k, member := range src.Members() {
			member.OnComplete(func(ctx context.Context, rec *audit.Record) error {
				return j.trigger(ctx, i, k, member, rec)
			})
		}
	}
}

// trigger dispatches a source completion by kind.
func (j *Join) trigger(ctx context.Context, source, member int, node *engine.Task, rec *audit.Record) error {
	switch j.kind {
	case KindSequence:
		return j.emit(ctx, j.targets[source], rec)

	case KindFork:
		for _, target := range j.targets {
			if err := j.emit(ctx, target, rec); err != nil {
				return err
			}
		}
		return nil

	case KindMerge:
		return j.emit(ctx, j.targets[0], rec)

	case KindSyncMerge:
		return j.syncMerge(ctx, source, member, node, rec)

	case KindSwitch:
		return j.route(ctx, node, rec)

	case KindGate:
		j.collect(rec)
		return nil

	default:
		return fmt.Errorf("unknown join kind %d", int(j.kind))
	}
}

// emit applies the transform and enqueues target, splitting array records
// first when the join iterates.
func (j *Join) emit(ctx context.Context, target *engine.Task, rec *audit.Record) error {
	if j.transform != nil {
		out, err := j.transform(rec)
		if err != nil {
			return fmt.Errorf("%s: transform: %w", j, err)
		}
		rec = out
	}

	if !j.iterate {
		j.sched.Enqueue(target, rec)
		return nil
	}

	parts, err := rec.SplitAsArray()
	if err != nil {
		return fmt.Errorf("%s: iterate: %w", j, err)
	}
	for _, part := range parts {
		j.sched.Enqueue(target, part)
	}
	return nil
}

func (j *Join) route(ctx context.Context, node *engine.Task, rec *audit.Record) error {
	index, ok := j.selector(rec)
	if !ok {
		j.logger.Debug("switch declined, collecting", "node", node.String(), "record", rec.ID())
		return j.sched.Collect(ctx, node, rec)
	}
	if index < 0 || index >= len(j.targets) {
		return engine.NewRoutingError(node.String(), index, len(j.targets))
	}
	return j.emit(ctx, j.targets[index], rec)
}
