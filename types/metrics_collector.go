package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ManagerMetrics
	ShardMetrics
	CacheMetrics
	LimiterMetrics
}

// ManagerMetrics defines metrics for manager-level operations.
type ManagerMetrics interface {
	// RecordShardCount sets the number of shards owned by this node (gauge).
	RecordShardCount(count int)

	// RecordShardRestart records a supervised shard restart after a fatal failure.
	RecordShardRestart(shardID int)
}

// ShardMetrics defines metrics for per-shard connection lifecycle events.
type ShardMetrics interface {
	// RecordPhaseTransition records a shard phase transition event.
	RecordPhaseTransition(shardID int, from, to ShardPhase)

	// RecordEvent records a dispatch event received on a shard.
	RecordEvent(shardID int, eventType string)

	// RecordHeartbeatLatency records the observed heartbeat round trip in seconds.
	RecordHeartbeatLatency(shardID int, seconds float64)

	// RecordReconnect records a reconnect attempt and whether it resumed the
	// prior session or started a fresh one.
	RecordReconnect(shardID int, resumed bool)
}

// CacheMetrics defines metrics for entity cache operations.
type CacheMetrics interface {
	// RecordCacheOperation records a cache operation result.
	//
	// Parameters:
	//   - op: Operation type ("get", "upsert", "delete", "bulk_get")
	//   - hit: true for hits/applied writes, false for misses/skipped writes
	RecordCacheOperation(op string, hit bool)

	// RecordCacheDegraded sets whether the shared cache is in pass-through
	// degraded mode (gauge: 1 degraded, 0 healthy).
	RecordCacheDegraded(degraded bool)
}

// LimiterMetrics defines metrics for session-start rate limiter operations.
type LimiterMetrics interface {
	// RecordAcquireWait records how long a shard waited for a session-start
	// slot, in seconds.
	RecordAcquireWait(bucket int, seconds float64)
}
