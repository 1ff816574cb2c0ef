// Package metrics provides MetricsCollector implementations for the library.
package metrics

import "github.com/PoisonousPython/PluralKit/types"

// NopMetrics is a MetricsCollector that discards all measurements.
//
// Used as the default when no collector is configured, so call sites never
// need nil checks.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordShardCount discards the measurement.
func (n *NopMetrics) RecordShardCount(_ int) {}

// RecordShardRestart discards the measurement.
func (n *NopMetrics) RecordShardRestart(_ int) {}

// RecordPhaseTransition discards the measurement.
func (n *NopMetrics) RecordPhaseTransition(_ int, _, _ types.ShardPhase) {}

// RecordEvent discards the measurement.
func (n *NopMetrics) RecordEvent(_ int, _ string) {}

// RecordHeartbeatLatency discards the measurement.
func (n *NopMetrics) RecordHeartbeatLatency(_ int, _ float64) {}

// RecordReconnect discards the measurement.
func (n *NopMetrics) RecordReconnect(_ int, _ bool) {}

// RecordCacheOperation discards the measurement.
func (n *NopMetrics) RecordCacheOperation(_ string, _ bool) {}

// RecordCacheDegraded discards the measurement.
func (n *NopMetrics) RecordCacheDegraded(_ bool) {}

// RecordAcquireWait discards the measurement.
func (n *NopMetrics) RecordAcquireWait(_ int, _ float64) {}
