package pluralkit

import (
	"github.com/gorilla/websocket"

	"github.com/PoisonousPython/PluralKit/cache"
	"github.com/PoisonousPython/PluralKit/ratelimit"
	"github.com/PoisonousPython/PluralKit/types"
)

// Option configures a Manager with optional dependencies.
type Option func(*managerOptions)

// managerOptions holds optional Manager configuration.
type managerOptions struct {
	logger       types.Logger
	metrics      types.MetricsCollector
	hooks        *types.Hooks
	cache        cache.Cache
	limiter      ratelimit.Limiter
	infoProvider types.GatewayInfoProvider
	fetcher      types.EntityFetcher
	dialer       *websocket.Dialer
	backoffSeed  int64
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewManager
func WithLogger(logger types.Logger) Option {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewManager
//
// Example:
//
//	collector := metrics.NewPrometheus(nil, "pluralkit")
//	mgr := pluralkit.NewManager(&cfg, handler, pluralkit.WithMetrics(collector))
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *managerOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewManager
//
// Example:
//
//	hooks := &pluralkit.Hooks{
//	    OnShardReady: func(ctx context.Context, shardID int, sessionID string) error {
//	        return announceReady(shardID)
//	    },
//	}
//	mgr := pluralkit.NewManager(&cfg, handler, pluralkit.WithHooks(hooks))
func WithHooks(hooks *types.Hooks) Option {
	return func(o *managerOptions) {
		o.hooks = hooks
	}
}

// WithCache sets the entity cache backend. Without this option the Manager
// uses an in-process cache; pass cache.NewShared to share entities across
// the cluster.
//
// Parameters:
//   - c: Cache implementation
//
// Returns:
//   - Option: Functional option for NewManager
func WithCache(c cache.Cache) Option {
	return func(o *managerOptions) {
		o.cache = c
	}
}

// WithRateLimiter sets the session-start rate limiter backend. Without this
// option the Manager uses an in-process limiter, which is only correct for
// single-node deployments; pass ratelimit.NewShared for clusters.
//
// Parameters:
//   - l: Limiter implementation
//
// Returns:
//   - Option: Functional option for NewManager
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(o *managerOptions) {
		o.limiter = l
	}
}

// WithGatewayInfoProvider sets the provider used to resolve the topology and
// gateway URL when the config omits them. Defaults to the platform REST API.
//
// Parameters:
//   - p: GatewayInfoProvider implementation
//
// Returns:
//   - Option: Functional option for NewManager
func WithGatewayInfoProvider(p types.GatewayInfoProvider) Option {
	return func(o *managerOptions) {
		o.infoProvider = p
	}
}

// WithEntityFetcher sets the fallback used by Manager.Entity to bootstrap
// cache misses from the platform REST API.
//
// Parameters:
//   - f: EntityFetcher implementation
//
// Returns:
//   - Option: Functional option for NewManager
func WithEntityFetcher(f types.EntityFetcher) Option {
	return func(o *managerOptions) {
		o.fetcher = f
	}
}

// WithDialer overrides the websocket dialer used by shards. Tests use this to
// point shards at a local fake gateway.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *managerOptions) {
		o.dialer = d
	}
}

// WithBackoffSeed makes reconnect jitter deterministic. Zero (the default)
// uses the shared process PRNG.
func WithBackoffSeed(seed int64) Option {
	return func(o *managerOptions) {
		o.backoffSeed = seed
	}
}
