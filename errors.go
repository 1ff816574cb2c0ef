package pluralkit

import "github.com/PoisonousPython/PluralKit/types"

// Sentinel errors returned by the Manager. Defined in the types subpackage
// so internal packages can share them; re-exported here for callers.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrInvalidTopology is returned when the cluster topology is inconsistent.
	ErrInvalidTopology = types.ErrInvalidTopology

	// ErrEventHandlerRequired is returned when no event handler is provided.
	ErrEventHandlerRequired = types.ErrEventHandlerRequired

	// ErrAlreadyStarted is returned when Start is called on a running manager.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = types.ErrNotStarted

	// ErrConnection is returned for recoverable gateway transport failures.
	ErrConnection = types.ErrConnection

	// ErrHandshakeTimeout is returned when a shard handshake exceeds its window.
	ErrHandshakeTimeout = types.ErrHandshakeTimeout

	// ErrSessionInvalid is returned when the gateway invalidates a session.
	ErrSessionInvalid = types.ErrSessionInvalid

	// ErrShardFatal is returned when a shard fails in a way reconnecting cannot fix.
	ErrShardFatal = types.ErrShardFatal

	// ErrAcquireTimeout is returned when a session-start slot cannot be
	// acquired within the configured wait.
	ErrAcquireTimeout = types.ErrAcquireTimeout

	// ErrEntityNotFound is returned for cache lookups that miss.
	ErrEntityNotFound = types.ErrEntityNotFound

	// ErrCacheUnavailable is the wrapped cause in the degrade warning the
	// shared cache logs when its backing store is unreachable. Cache
	// operations themselves degrade to pass-through and return nil.
	ErrCacheUnavailable = types.ErrCacheUnavailable

	// ErrShutdownTimeout is returned when shutdown exceeds its deadline.
	ErrShutdownTimeout = types.ErrShutdownTimeout

	// ErrConnectivity is returned for shared backend connectivity failures.
	ErrConnectivity = types.ErrConnectivity
)
