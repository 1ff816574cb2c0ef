package pluralkit

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/PoisonousPython/PluralKit/cache"
	"github.com/PoisonousPython/PluralKit/internal/kvutil"
	"github.com/PoisonousPython/PluralKit/ratelimit"
)

// SharedBackends bundles the cluster-shared cache and rate limiter built
// over a single NATS connection.
type SharedBackends struct {
	Cache   *cache.Shared
	Limiter *ratelimit.Shared
}

// NewSharedBackends provisions the JetStream KV buckets named in the config
// and builds the shared cache and session-start limiter over them. Pass the
// results to NewManager via WithCache and WithRateLimiter.
//
// Parameters:
//   - ctx: Bounds bucket provisioning
//   - nc: Established NATS connection, shared by both backends
//   - cfg: Configuration carrying bucket names and limiter settings
//
// Returns:
//   - *SharedBackends: Ready-to-use shared backends
//   - error: JetStream or bucket provisioning failure
//
// Example:
//
//	nc, _ := nats.Connect(natsURL)
//	backends, err := pluralkit.NewSharedBackends(ctx, nc, &cfg)
//	if err != nil {
//	    return err
//	}
//	mgr, err := pluralkit.NewManager(&cfg, handler,
//	    pluralkit.WithCache(backends.Cache),
//	    pluralkit.WithRateLimiter(backends.Limiter),
//	)
func NewSharedBackends(ctx context.Context, nc *nats.Conn, cfg *Config) (*SharedBackends, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: NATS connection is required", ErrInvalidConfig)
	}
	SetDefaults(cfg)

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	cacheKV, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.KVBuckets.CacheBucket,
		Description: "entity cache shared across cluster nodes",
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("ensure cache bucket: %w", err)
	}

	limitKV, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.KVBuckets.RateLimitBucket,
		Description: "session-start windows shared across cluster nodes",
		TTL:         cfg.KVBuckets.RateLimitTTL,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("ensure rate limit bucket: %w", err)
	}

	concurrency := cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &SharedBackends{
		Cache: cache.NewShared(cacheKV),
		Limiter: ratelimit.NewShared(limitKV, concurrency, cfg.RateLimit.Capacity,
			cfg.RateLimit.Window, cfg.RateLimit.AcquireTimeout),
	}, nil
}
