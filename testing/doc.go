// Package testing provides helpers for exercising the shard fleet against
// real infrastructure: an embedded NATS server with JetStream for the shared
// cache and rate limiter backends, a scriptable fake gateway websocket
// server, and a logger bridged to testing.T.
//
// Import it under an alias to avoid clashing with the standard library:
//
//	import pktest "github.com/PoisonousPython/PluralKit/testing"
package testing
