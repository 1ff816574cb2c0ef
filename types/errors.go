package types

import "errors"

// Sentinel errors for the gateway cluster library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Manager errors - Public API errors returned by the Manager component.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidTopology is returned when the resolved cluster topology is
	// self-contradictory (e.g., node index >= total nodes). This is a fatal
	// startup error: no shards are started.
	ErrInvalidTopology = errors.New("invalid cluster topology")

	// ErrEventHandlerRequired is returned when no event handler is provided.
	ErrEventHandlerRequired = errors.New("event handler is required")

	// ErrAlreadyStarted is returned when Start is called on an already running manager.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrNotStarted is returned when operations require a started manager.
	ErrNotStarted = errors.New("manager not started")
)

// Shard errors - Retryable per-shard failures. These never propagate beyond
// the owning shard; they drive its reconnect state machine.
var (
	// ErrConnection indicates a transport-level failure while connecting to
	// or handshaking with the gateway. The shard retries with backoff.
	ErrConnection = errors.New("gateway connection failure")

	// ErrHandshakeTimeout is returned when the identify/resume exchange does
	// not complete within the configured handshake window.
	ErrHandshakeTimeout = errors.New("gateway handshake timed out")

	// ErrSessionInvalid indicates the gateway rejected a resume attempt and
	// a fresh identify is required.
	ErrSessionInvalid = errors.New("gateway session no longer resumable")

	// ErrShardFatal indicates the gateway closed the connection with a code
	// that cannot be recovered by reconnecting (bad token, invalid shard).
	ErrShardFatal = errors.New("unrecoverable gateway failure")
)

// Rate limiter errors.
var (
	// ErrAcquireTimeout is returned when a rate limiter wait exceeds its
	// bounded timeout. Surfaced to the shard as a retryable connection error.
	ErrAcquireTimeout = errors.New("session rate limit wait exceeded")
)

// Cache errors.
var (
	// ErrEntityNotFound is returned by cache lookups for unknown entities.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrCacheUnavailable indicates the shared cache store is unreachable.
	// The cache degrades to pass-through behavior; this error is logged as a
	// warning and never raised to callers of the Cache interface.
	ErrCacheUnavailable = errors.New("shared cache unavailable")
)

// Shutdown errors.
var (
	// ErrShutdownTimeout indicates the grace period elapsed before all
	// shards reported closed. Remaining shards are force-closed and
	// shutdown proceeds regardless.
	ErrShutdownTimeout = errors.New("graceful shutdown timed out")
)

// Common errors - Shared errors used across multiple components.
var (
	// ErrConnectivity indicates a NATS/KV connectivity issue.
	// This is used to distinguish network failures from application errors
	// and triggers degraded (pass-through) operation for the shared backends.
	ErrConnectivity = errors.New("connectivity issue")
)
