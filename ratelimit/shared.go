package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/PoisonousPython/PluralKit/internal/logging"
	"github.com/PoisonousPython/PluralKit/internal/natsutil"
	"github.com/PoisonousPython/PluralKit/types"
)

// Shared is a cluster-wide rate limiter backend over a NATS JetStream KV
// bucket.
//
// Each (bucket, window) pair maps to one KV key holding a usage counter.
// Increments are atomic: a new key is claimed with Create and an existing
// counter is advanced with a revision-conditional Update, so concurrent
// acquisitions from any number of node processes can never push usage past
// capacity. The KV bucket should be created with a TTL of at least one
// window so counters from elapsed windows expire on their own.
type Shared struct {
	kv             jetstream.KeyValue
	concurrency    int
	capacity       int
	window         time.Duration
	acquireTimeout time.Duration
	logger         types.Logger
	metrics        types.MetricsCollector
}

// Compile-time assertion that Shared implements Limiter.
var _ Limiter = (*Shared)(nil)

// NewShared creates a cluster-wide limiter over the given KV bucket.
//
// Parameters:
//   - kv: JetStream KV bucket for window counters (TTL >= window recommended)
//   - concurrency: Number of buckets (the gateway's max_concurrency)
//   - capacity: Session starts allowed per bucket per window, cluster-wide
//   - window: Rate limit window length
//   - acquireTimeout: Bounded wait before Acquire gives up (0 = no bound)
//
// Returns:
//   - *Shared: New shared limiter
func NewShared(kv jetstream.KeyValue, concurrency, capacity int, window, acquireTimeout time.Duration) *Shared {
	if concurrency <= 0 {
		concurrency = 1
	}
	if capacity <= 0 {
		capacity = 1
	}

	return &Shared{
		kv:             kv,
		concurrency:    concurrency,
		capacity:       capacity,
		window:         window,
		acquireTimeout: acquireTimeout,
		logger:         logging.NewNop(),
	}
}

// SetLogger sets the logger for contention diagnostics.
func (s *Shared) SetLogger(logger types.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics sets the metrics collector for acquire waits.
func (s *Shared) SetMetrics(m types.MetricsCollector) {
	s.metrics = m
}

// Acquire blocks until the shard's bucket has cluster-wide capacity in the
// current window.
func (s *Shared) Acquire(ctx context.Context, shardID int) error {
	bucket := shardID % s.concurrency
	start := time.Now()

	var deadline <-chan time.Time
	if s.acquireTimeout > 0 {
		timer := time.NewTimer(s.acquireTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		wait, err := s.tryAcquire(ctx, bucket)
		if err != nil {
			return err
		}
		if wait == 0 {
			if s.metrics != nil {
				s.metrics.RecordAcquireWait(bucket, time.Since(start).Seconds())
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			s.logger.Debug("session-start slot wait exceeded",
				"bucket", bucket,
				"shard_id", shardID,
				"waited", time.Since(start),
			)

			return types.ErrAcquireTimeout
		case <-time.After(wait):
		}
	}
}

// tryAcquire attempts one atomic increment for the current window.
//
// Returns a zero wait on success, or the time until the window rolls over
// when the bucket is exhausted.
func (s *Shared) tryAcquire(ctx context.Context, bucket int) (time.Duration, error) {
	now := time.Now()
	key := s.keyFor(bucket, windowIndex(now, s.window))

	entry, err := s.kv.Get(ctx, key)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
		if _, cerr := s.kv.Create(ctx, key, []byte("1")); cerr != nil {
			if errors.Is(cerr, jetstream.ErrKeyExists) {
				return time.Millisecond, nil // Raced with another acquirer, re-read shortly.
			}

			return 0, s.classify(cerr)
		}

		return 0, nil

	case err != nil:
		return 0, s.classify(err)
	}

	used, perr := strconv.Atoi(string(entry.Value()))
	if perr != nil {
		return 0, fmt.Errorf("corrupt rate limit counter %s: %w", key, perr)
	}

	if used >= s.capacity {
		return windowRemaining(now, s.window), nil
	}

	if _, uerr := s.kv.Update(ctx, key, []byte(strconv.Itoa(used+1)), entry.Revision()); uerr != nil {
		if natsutil.IsConnectivityError(uerr) {
			return 0, s.classify(uerr)
		}

		return time.Millisecond, nil // Revision conflict, re-read shortly.
	}

	return 0, nil
}

func (s *Shared) classify(err error) error {
	if natsutil.IsConnectivityError(err) {
		return fmt.Errorf("rate limit store unreachable: %w (%w)", err, types.ErrConnectivity)
	}

	return fmt.Errorf("rate limit store operation failed: %w", err)
}

func (s *Shared) keyFor(bucket int, window int64) string {
	return fmt.Sprintf("bucket.%d.win.%d", bucket, window)
}
