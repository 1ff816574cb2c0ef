package kvutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	pktest "github.com/PoisonousPython/PluralKit/testing"
)

// TestEnsureBucket_Concurrent verifies that several node processes racing to
// provision the same bucket all end up with a usable handle.
func TestEnsureBucket_Concurrent(t *testing.T) {
	_, nc := pktest.StartEmbeddedNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	const workers = 5
	cfg := jetstream.KeyValueConfig{
		Bucket: "ensure-concurrent",
		TTL:    5 * time.Second,
	}

	var wg sync.WaitGroup
	kvs := make([]jetstream.KeyValue, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			kvs[idx], errs[idx] = EnsureBucket(ctx, js, cfg, 3)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		require.NotNil(t, kvs[i], "worker %d", i)
	}

	// Every handle points at the same bucket.
	_, err = kvs[0].PutString(ctx, "probe", "1")
	require.NoError(t, err)
	entry, err := kvs[workers-1].Get(ctx, "probe")
	require.NoError(t, err)
	require.Equal(t, "1", string(entry.Value()))
}

func TestEnsureBucket_ExistingBucketIsReused(t *testing.T) {
	_, nc := pktest.StartEmbeddedNATS(t)
	ctx := t.Context()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	cfg := jetstream.KeyValueConfig{Bucket: "ensure-reuse"}

	first, err := EnsureBucket(ctx, js, cfg, 3)
	require.NoError(t, err)
	_, err = first.PutString(ctx, "k", "v")
	require.NoError(t, err)

	second, err := EnsureBucket(ctx, js, cfg, 3)
	require.NoError(t, err)
	entry, err := second.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(entry.Value()))
}
