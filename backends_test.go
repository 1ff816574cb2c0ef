package pluralkit

import (
	"testing"

	"github.com/stretchr/testify/require"

	pktest "github.com/PoisonousPython/PluralKit/testing"
	"github.com/PoisonousPython/PluralKit/types"
)

func TestNewSharedBackends(t *testing.T) {
	_, nc := pktest.StartEmbeddedNATS(t)

	cfg := TestConfig()
	cfg.KVBuckets.CacheBucket = "backends-cache"
	cfg.KVBuckets.RateLimitBucket = "backends-ratelimit"

	backends, err := NewSharedBackends(t.Context(), nc, &cfg)
	require.NoError(t, err)
	require.NotNil(t, backends.Cache)
	require.NotNil(t, backends.Limiter)

	// Both backends are live against the provisioned buckets.
	ctx := t.Context()
	require.NoError(t, backends.Cache.Upsert(ctx, types.CacheEntry{
		Kind: types.KindGuild, ID: "1", Payload: []byte(`{"id":"1"}`),
	}))
	got, err := backends.Cache.Get(ctx, types.KindGuild, "1")
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Version)

	require.NoError(t, backends.Limiter.Acquire(ctx, 0))

	// Provisioning is idempotent: a second node opening the same buckets
	// must succeed and see the same data.
	again, err := NewSharedBackends(t.Context(), nc, &cfg)
	require.NoError(t, err)
	_, err = again.Cache.Get(ctx, types.KindGuild, "1")
	require.NoError(t, err)
}

func TestNewSharedBackends_RequiresConnection(t *testing.T) {
	cfg := TestConfig()
	_, err := NewSharedBackends(t.Context(), nil, &cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
