package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/PoisonousPython/PluralKit/types"
)

func TestPrometheusCollector_RegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "pktest")

	m.RecordShardCount(4)
	m.RecordShardRestart(2)
	m.RecordPhaseTransition(0, types.PhaseIdle, types.PhaseConnecting)
	m.RecordEvent(0, "MESSAGE_CREATE")
	m.RecordHeartbeatLatency(0, 0.042)
	m.RecordReconnect(0, true)
	m.RecordCacheOperation("get", true)
	m.RecordCacheDegraded(false)
	m.RecordAcquireWait(0, 0.5)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"pktest_cluster_owned_shards",
		"pktest_cluster_shard_restarts_total",
		"pktest_shard_phase_transitions_total",
		"pktest_shard_events_total",
		"pktest_shard_heartbeat_latency_seconds",
		"pktest_shard_reconnects_total",
		"pktest_cache_operations_total",
		"pktest_cache_degraded",
		"pktest_ratelimit_acquire_wait_seconds",
	} {
		require.True(t, names[want], "expected metric family %s", want)
	}
}

func TestPrometheusCollector_SharedRegistryTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()

	// Two collectors over one registry must not panic on duplicate
	// registration.
	a := NewPrometheus(reg, "pktest")
	b := NewPrometheus(reg, "pktest")
	require.NotPanics(t, func() {
		a.RecordShardCount(1)
		b.RecordShardCount(2)
	})
}
