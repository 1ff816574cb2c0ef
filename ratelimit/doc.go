// Package ratelimit gates how many shards may open a new gateway session
// concurrently.
//
// The gateway imposes a session-start limit: at most one identify per rate
// limit bucket per window, with shardID mod maxConcurrency selecting the
// bucket. Two interchangeable backends implement the Limiter interface:
//   - Local: process-local in-memory counters, sufficient when a single node
//     owns every bucket it uses.
//   - Shared: cluster-wide counters in a NATS JetStream KV bucket, used when
//     multiple node processes must not collectively exceed the provider's
//     global limit.
//
// Both backends provide the same observable guarantee: a bucket's usage in a
// window never exceeds its capacity, and acquisitions beyond capacity wait
// for the next window rather than failing. Waits are cancellable and bounded.
package ratelimit
