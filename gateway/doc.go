// Package gateway implements the per-shard connection lifecycle against the
// chat platform's real-time event gateway.
//
// Each Shard is a sequential state machine owning one websocket connection
// for a single shard ID:
//
//	Idle → Connecting → Handshaking → Ready → Disconnected → Reconnecting → Connecting
//
// with Closed as the terminal phase, reached only through the shutdown path.
// A shard opens the transport, performs the identify or resume handshake
// (identify gated by the cluster-wide session-start rate limiter), heartbeats
// at the server-supplied interval, upserts every entity decoded from a
// dispatch event into the shared cache, and forwards the event to the
// consumer. Transport loss drives exponential backoff with jitter; failures
// never propagate beyond the owning shard.
package gateway
