package types

import "context"

// Hooks defines callbacks for Manager and shard lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking shard control loops. Hooks receive the manager's
// lifecycle context which will be cancelled during shutdown.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - The context passed to hooks is cancelled when the manager stops
//   - Hook errors are logged but don't fail manager operations
//
// Best practices for hook implementation:
//   - Complete quickly (< 1 second recommended)
//   - Respect context cancellation
//   - Don't block on long I/O operations
//   - Make hooks idempotent (may be called multiple times)
type Hooks struct {
	// OnShardPhaseChanged is called when a shard's connection phase transitions.
	OnShardPhaseChanged func(ctx context.Context, shardID int, from, to ShardPhase) error

	// OnShardReady is called when a shard completes its handshake and enters
	// steady-state event reception.
	OnShardReady func(ctx context.Context, shardID int, sessionID string) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
