// Package types provides core type definitions and interfaces for the gateway cluster library.
//
// This package contains shared types that are used across multiple packages in the
// library. By keeping these types in a separate package, we avoid import cycles
// between the root package and its subsystem implementations (cache, ratelimit,
// gateway).
//
// Key types:
//   - Topology: Resolved cluster topology (nodes, shards, concurrency)
//   - ShardRange: Contiguous shard ID range owned by one node
//   - ShardPhase: Per-shard connection lifecycle phase
//   - CacheEntry: Versioned platform entity snapshot
//   - Event: Decoded gateway event forwarded to the consumer
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
