package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PoisonousPython/PluralKit/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metric registration is lazy: collectors are registered on first use so that
// constructing the collector never fails and duplicate registration in tests
// is avoided by injecting a fresh Registerer.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	shardCount       prometheus.Gauge
	shardRestarts    *prometheus.CounterVec
	phaseTransitions *prometheus.CounterVec
	events           *prometheus.CounterVec
	heartbeatLatency prometheus.Histogram
	reconnects       *prometheus.CounterVec
	cacheOps         *prometheus.CounterVec
	cacheDegraded    prometheus.Gauge
	acquireWait      prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "pluralkit" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "pluralkit"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.shardCount = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "cluster",
			Name:      "owned_shards",
			Help:      "Number of shards owned by this node.",
		})

		p.shardRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cluster",
			Name:      "shard_restarts_total",
			Help:      "Supervised shard restarts after fatal failures, by shard.",
		}, []string{"shard"})

		p.phaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "shard",
			Name:      "phase_transitions_total",
			Help:      "Shard connection phase transitions by source and target phase.",
		}, []string{"from", "to"})

		p.events = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "shard",
			Name:      "events_total",
			Help:      "Dispatch events received, by event type.",
		}, []string{"type"})

		p.heartbeatLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "shard",
			Name:      "heartbeat_latency_seconds",
			Help:      "Observed gateway heartbeat round trips in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		})

		p.reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "shard",
			Name:      "reconnects_total",
			Help:      "Shard reconnect attempts, split by resume vs fresh identify.",
		}, []string{"mode"})

		p.cacheOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Entity cache operations by operation and outcome.",
		}, []string{"op", "outcome"})

		p.cacheDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "cache",
			Name:      "degraded",
			Help:      "Whether the shared cache is in pass-through degraded mode.",
		})

		p.acquireWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "ratelimit",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a session-start slot in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		collectors := []prometheus.Collector{
			p.shardCount, p.shardRestarts, p.phaseTransitions, p.events,
			p.heartbeatLatency, p.reconnects, p.cacheOps, p.cacheDegraded,
			p.acquireWait,
		}
		for _, c := range collectors {
			// AlreadyRegisteredError is tolerated so shared registries work.
			_ = p.reg.Register(c)
		}
	})
}

// RecordShardCount sets the owned shard gauge.
func (p *PrometheusCollector) RecordShardCount(count int) {
	p.ensureRegistered()
	p.shardCount.Set(float64(count))
}

// RecordShardRestart counts a supervised shard restart.
func (p *PrometheusCollector) RecordShardRestart(shardID int) {
	p.ensureRegistered()
	p.shardRestarts.WithLabelValues(strconv.Itoa(shardID)).Inc()
}

// RecordPhaseTransition counts a shard phase transition.
func (p *PrometheusCollector) RecordPhaseTransition(_ int, from, to types.ShardPhase) {
	p.ensureRegistered()
	p.phaseTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordEvent counts a dispatch event.
func (p *PrometheusCollector) RecordEvent(_ int, eventType string) {
	p.ensureRegistered()
	p.events.WithLabelValues(eventType).Inc()
}

// RecordHeartbeatLatency observes a heartbeat round trip.
func (p *PrometheusCollector) RecordHeartbeatLatency(_ int, seconds float64) {
	p.ensureRegistered()
	p.heartbeatLatency.Observe(seconds)
}

// RecordReconnect counts a reconnect attempt.
func (p *PrometheusCollector) RecordReconnect(_ int, resumed bool) {
	p.ensureRegistered()
	mode := "identify"
	if resumed {
		mode = "resume"
	}
	p.reconnects.WithLabelValues(mode).Inc()
}

// RecordCacheOperation counts a cache operation outcome.
func (p *PrometheusCollector) RecordCacheOperation(op string, hit bool) {
	p.ensureRegistered()
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.cacheOps.WithLabelValues(op, outcome).Inc()
}

// RecordCacheDegraded sets the degraded-mode gauge.
func (p *PrometheusCollector) RecordCacheDegraded(degraded bool) {
	p.ensureRegistered()
	if degraded {
		p.cacheDegraded.Set(1)
	} else {
		p.cacheDegraded.Set(0)
	}
}

// RecordAcquireWait observes a rate limiter wait.
func (p *PrometheusCollector) RecordAcquireWait(_ int, seconds float64) {
	p.ensureRegistered()
	p.acquireWait.Observe(seconds)
}
