package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "tapflow"
	metricsSubsystem = "engine"
)

// Metrics holds Prometheus instruments for the run loop.
type Metrics struct {
	// DispatchTotal counts processed work items.
	// Labels: node (task name), status (success, error)
	DispatchTotal *prometheus.CounterVec

	// DispatchDuration measures time spent invoking a node, dependencies
	// and completion callbacks included.
	// Labels: node
	DispatchDuration *prometheus.HistogramVec

	// QueueDepth tracks the number of queued work items.
	QueueDepth prometheus.Gauge

	// TerminalTotal counts records collected by the aggregator.
	// Labels: node
	TerminalTotal *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg. A nil reg
// creates unregistered instruments, which is what tests and embedded apps
// without a /metrics endpoint want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "dispatch_total",
				Help:      "Total work items processed by node and status",
			},
			[]string{"node", "status"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent processing one work item",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "queue_depth",
				Help:      "Number of queued work items",
			},
		),
		TerminalTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "terminal_total",
				Help:      "Total records collected as terminal results by node",
			},
			[]string{"node"},
		),
	}
}
