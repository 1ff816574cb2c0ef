package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/PoisonousPython/PluralKit/types"
)

// Local is a process-local rate limiter backend.
//
// Each bucket holds a windowed counter guarded by its own mutex. Waiting
// callers poll the window boundary rather than holding the lock, so an
// unbounded number of shards can contend on a bucket without blocking each
// other's unrelated buckets.
type Local struct {
	concurrency    int
	capacity       int
	window         time.Duration
	acquireTimeout time.Duration
	metrics        types.MetricsCollector

	mu      sync.Mutex
	buckets map[int]*bucketState
}

type bucketState struct {
	mu        sync.Mutex
	windowIdx int64
	used      int
}

// Compile-time assertion that Local implements Limiter.
var _ Limiter = (*Local)(nil)

// NewLocal creates a process-local limiter.
//
// Parameters:
//   - concurrency: Number of buckets (the gateway's max_concurrency)
//   - capacity: Session starts allowed per bucket per window
//   - window: Rate limit window length
//   - acquireTimeout: Bounded wait before Acquire gives up (0 = no bound)
//
// Returns:
//   - *Local: New local limiter
func NewLocal(concurrency, capacity int, window, acquireTimeout time.Duration) *Local {
	if concurrency <= 0 {
		concurrency = 1
	}
	if capacity <= 0 {
		capacity = 1
	}

	return &Local{
		concurrency:    concurrency,
		capacity:       capacity,
		window:         window,
		acquireTimeout: acquireTimeout,
		buckets:        make(map[int]*bucketState, concurrency),
	}
}

// SetMetrics sets the metrics collector for acquire waits.
func (l *Local) SetMetrics(m types.MetricsCollector) {
	l.metrics = m
}

// Acquire blocks until the shard's bucket has capacity in the current window.
//
// The bucket is shardID mod max_concurrency, mirroring the gateway's rule.
func (l *Local) Acquire(ctx context.Context, shardID int) error {
	bucket := shardID % l.concurrency
	state := l.bucket(bucket)
	start := time.Now()

	var deadline <-chan time.Time
	if l.acquireTimeout > 0 {
		timer := time.NewTimer(l.acquireTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		wait, ok := state.tryAcquire(l.capacity, l.window)
		if ok {
			if l.metrics != nil {
				l.metrics.RecordAcquireWait(bucket, time.Since(start).Seconds())
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return types.ErrAcquireTimeout
		case <-time.After(wait):
		}
	}
}

// tryAcquire consumes a slot if the current window has capacity, otherwise
// returns how long to wait for the next window.
func (b *bucketState) tryAcquire(capacity int, window time.Duration) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	idx := windowIndex(now, window)
	if idx != b.windowIdx {
		b.windowIdx = idx
		b.used = 0
	}

	if b.used < capacity {
		b.used++
		return 0, true
	}

	return windowRemaining(now, window), false
}

func (l *Local) bucket(id int) *bucketState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.buckets[id]
	if !ok {
		state = &bucketState{windowIdx: -1}
		l.buckets[id] = state
	}

	return state
}

func windowIndex(now time.Time, window time.Duration) int64 {
	if window <= 0 {
		return 0
	}

	return now.UnixNano() / int64(window)
}

func windowRemaining(now time.Time, window time.Duration) time.Duration {
	if window <= 0 {
		return time.Millisecond
	}

	elapsed := time.Duration(now.UnixNano() % int64(window))

	return window - elapsed
}
