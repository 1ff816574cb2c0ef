package ratelimit

import "context"

// Limiter is the capability interface all backends implement.
//
// Implementations are internally responsible for safe concurrent mutation
// and must tolerate concurrent acquisitions from an unbounded number of
// shards without external locking by callers.
type Limiter interface {
	// Acquire blocks until capacity is available in the current window for
	// the shard's bucket, then consumes one slot and returns.
	//
	// The wait is bounded: cancellation of ctx unblocks the caller promptly
	// with the context error, and a backend-configured acquire timeout
	// returns types.ErrAcquireTimeout. Either outcome leaves the window
	// usage unchanged.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - shardID: Shard requesting a session-start slot; the bucket is
	//     shardID mod the configured concurrency
	//
	// Returns:
	//   - error: nil once a slot is held, ctx.Err() on cancellation,
	//     types.ErrAcquireTimeout when the bounded wait elapses
	Acquire(ctx context.Context, shardID int) error
}
