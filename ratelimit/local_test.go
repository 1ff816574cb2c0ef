package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PoisonousPython/PluralKit/types"
)

func TestLocal_FirstAcquireIsImmediate(t *testing.T) {
	l := NewLocal(1, 1, time.Second, 0)

	start := time.Now()
	require.NoError(t, l.Acquire(t.Context(), 0))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLocal_SecondAcquireWaitsForNextWindow(t *testing.T) {
	window := 150 * time.Millisecond
	l := NewLocal(1, 1, window, 0)
	ctx := t.Context()

	require.NoError(t, l.Acquire(ctx, 0))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, 0))
	// The second slot opens at the next window boundary, which is at most
	// one full window away.
	require.LessOrEqual(t, time.Since(start), window+50*time.Millisecond)
}

func TestLocal_BucketsAreIndependent(t *testing.T) {
	l := NewLocal(4, 1, time.Minute, 0)
	ctx := t.Context()

	// Shards 0..3 land in distinct buckets and must all pass immediately
	// even though each bucket is exhausted afterwards.
	start := time.Now()
	for shard := 0; shard < 4; shard++ {
		require.NoError(t, l.Acquire(ctx, shard))
	}
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestLocal_SameBucketSerializes(t *testing.T) {
	window := 100 * time.Millisecond
	l := NewLocal(2, 1, window, 0)
	ctx := t.Context()
	alignToWindow(window)

	// Shards 1 and 3 share bucket 1 (id mod 2); three acquisitions need
	// three distinct windows, so the last one finishes at least two
	// boundaries in.
	start := time.Now()
	for _, shard := range []int{1, 3, 1} {
		require.NoError(t, l.Acquire(ctx, shard))
	}
	require.GreaterOrEqual(t, time.Since(start), 2*window-20*time.Millisecond)
}

// alignToWindow sleeps until just after a window boundary so timing
// assertions are not skewed by where in a window the test happened to start.
func alignToWindow(window time.Duration) {
	now := time.Now()
	elapsed := time.Duration(now.UnixNano() % int64(window))
	time.Sleep(window - elapsed + 5*time.Millisecond)
}

func TestLocal_AcquireTimeout(t *testing.T) {
	l := NewLocal(1, 1, time.Minute, 50*time.Millisecond)
	ctx := t.Context()

	require.NoError(t, l.Acquire(ctx, 0))
	require.ErrorIs(t, l.Acquire(ctx, 0), types.ErrAcquireTimeout)
}

func TestLocal_AcquireHonorsContext(t *testing.T) {
	l := NewLocal(1, 1, time.Minute, 0)
	require.NoError(t, l.Acquire(t.Context(), 0))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(ctx, 0)
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
}

func TestLocal_CapacityPerWindowUnderConcurrency(t *testing.T) {
	window := 200 * time.Millisecond
	const capacity = 3
	l := NewLocal(1, capacity, window, 0)
	ctx := t.Context()
	alignToWindow(window)

	// Launch more acquirers than one window's capacity and count how many
	// pass before the window rolls over.
	type result struct{ took time.Duration }
	results := make(chan result, capacity+2)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < capacity+2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(ctx, 0))
			results <- result{took: time.Since(start)}
		}()
	}
	wg.Wait()
	close(results)

	fast := 0
	for r := range results {
		if r.took < window/2 {
			fast++
		}
	}
	require.Equal(t, capacity, fast, "only one window's capacity may pass immediately")
}
