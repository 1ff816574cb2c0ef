// Package cache provides the entity cache shared by all shards of a node and,
// with the shared backend, by all node processes of the cluster.
//
// The cache exists solely to avoid redundant REST lookups for entities that
// have already been observed on the gateway stream. It is a performance
// optimization, not a correctness dependency: the shared backend degrades to
// pass-through behavior when its backing store is unreachable instead of
// failing callers.
//
// Two interchangeable backends implement the Cache interface:
//   - Local: an in-process table safe for concurrent access from all shards
//     of this node.
//   - Shared: a NATS JetStream KV bucket safe for concurrent access across
//     all node processes, enabling a cold-started node to read entities
//     warmed by a sibling node.
//
// Concurrent writes are resolved last-writer-wins by entry version; a key's
// version never decreases.
package cache
