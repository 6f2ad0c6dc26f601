package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wang-shun/siridb-server/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use. The embedded
// NopMetrics keeps the interface covered if new metric domains are added
// before they get concrete instrumentation here.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	hbTransitions   *prometheus.CounterVec
	hbRunDuration   *prometheus.HistogramVec
	hbSkippedTicks  prometheus.Counter
	connectAttempts *prometheus.CounterVec
	connectedPeers  *prometheus.GaugeVec
	replFlushes     *prometheus.CounterVec
	replQueueDepth  *prometheus.GaugeVec
	beaconPublishes *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "siridb" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "siridb"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.hbTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "status_transitions_total",
			Help:      "Total heartbeat scheduler status transitions by from/to status.",
		}, []string{"from", "to"})

		p.hbRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of heartbeat runs in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"})

		p.hbSkippedTicks = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "skipped_ticks_total",
			Help:      "Total timer ticks skipped because a run was still in flight.",
		})

		p.connectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "connect",
			Name:      "attempts_total",
			Help:      "Total peer reconnect attempts by database and result.",
		}, []string{"database", "result"})

		p.connectedPeers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "connect",
			Name:      "connected_peers",
			Help:      "Current number of connected peers per database.",
		}, []string{"database"})

		p.replFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "replicate",
			Name:      "flushes_total",
			Help:      "Total replication packages drained by database and result.",
		}, []string{"database", "result"})

		p.replQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "replicate",
			Name:      "queue_depth",
			Help:      "Current replication queue depth per database.",
		}, []string{"database"})

		p.beaconPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "beacon",
			Name:      "publishes_total",
			Help:      "Total liveness beacon publishes by node and result.",
		}, []string{"node", "result"})

		collectors := []prometheus.Collector{
			p.hbTransitions,
			p.hbRunDuration,
			p.hbSkippedTicks,
			p.connectAttempts,
			p.connectedPeers,
			p.replFlushes,
			p.replQueueDepth,
			p.beaconPublishes,
		}
		for _, c := range collectors {
			// AlreadyRegisteredError is tolerated so multiple collectors may
			// share a registerer in tests.
			_ = p.reg.Register(c)
		}
	})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// RecordStatusTransition records a scheduler status transition.
func (p *PrometheusCollector) RecordStatusTransition(from, to types.Status) {
	p.ensureRegistered()
	p.hbTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordRunDuration records the duration of one heartbeat run.
func (p *PrometheusCollector) RecordRunDuration(duration float64, aborted bool) {
	p.ensureRegistered()

	outcome := "completed"
	if aborted {
		outcome = "aborted"
	}
	p.hbRunDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordSkippedTick records a skipped timer tick.
func (p *PrometheusCollector) RecordSkippedTick() {
	p.ensureRegistered()
	p.hbSkippedTicks.Inc()
}

// RecordConnectAttempt records one peer reconnect attempt.
func (p *PrometheusCollector) RecordConnectAttempt(database, _ /* server */ string, success bool) {
	p.ensureRegistered()
	p.connectAttempts.WithLabelValues(database, resultLabel(success)).Inc()
}

// RecordConnectedPeers sets the connected peer gauge for a database.
func (p *PrometheusCollector) RecordConnectedPeers(database string, count int) {
	p.ensureRegistered()
	p.connectedPeers.WithLabelValues(database).Set(float64(count))
}

// RecordReplicationFlush records one drained replication package.
func (p *PrometheusCollector) RecordReplicationFlush(database string, success bool) {
	p.ensureRegistered()
	p.replFlushes.WithLabelValues(database, resultLabel(success)).Inc()
}

// RecordReplicationQueueDepth sets the replication queue depth gauge.
func (p *PrometheusCollector) RecordReplicationQueueDepth(database string, depth int) {
	p.ensureRegistered()
	p.replQueueDepth.WithLabelValues(database).Set(float64(depth))
}

// RecordBeacon records a liveness beacon publish.
func (p *PrometheusCollector) RecordBeacon(node string, success bool) {
	p.ensureRegistered()
	p.beaconPublishes.WithLabelValues(node, resultLabel(success)).Inc()
}
