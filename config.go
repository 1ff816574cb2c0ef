package pluralkit

import (
	"fmt"
	"time"

	"github.com/PoisonousPython/PluralKit/types"
)

// RateLimitConfig controls the cluster-wide session-start rate limiter.
type RateLimitConfig struct {
	// Capacity is the number of identify attempts allowed per concurrency
	// bucket per window. The gateway allows one per bucket per window.
	Capacity int `yaml:"capacity"`

	// Window is the rate limit window length.
	//
	// Default: 5 seconds (the gateway's identify window).
	Window time.Duration `yaml:"window"`

	// AcquireTimeout bounds how long a shard waits for a session-start slot
	// before giving up and retrying through its backoff path.
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

// KVBucketConfig configures NATS JetStream KV bucket names for the shared
// backends.
type KVBucketConfig struct {
	// CacheBucket is the bucket name for the shared entity cache.
	CacheBucket string `yaml:"cacheBucket"`

	// RateLimitBucket is the bucket name for shared session-start counters.
	RateLimitBucket string `yaml:"rateLimitBucket"`

	// RateLimitTTL is how long spent rate limit windows linger before the
	// bucket expires them. Should be a small multiple of the window.
	RateLimitTTL time.Duration `yaml:"rateLimitTtl"`
}

// Config is the configuration for the Manager.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// Token authenticates against the gateway. Required.
	Token string `yaml:"token"`

	// GatewayURL is the websocket endpoint shards connect to. When empty the
	// Manager asks its GatewayInfoProvider for the recommended endpoint.
	GatewayURL string `yaml:"gatewayUrl"`

	// TotalNodes is the number of nodes in the cluster. Zero means the
	// Manager resolves a single-node topology from the gateway info
	// endpoint.
	TotalNodes int `yaml:"totalNodes"`

	// TotalShards is the fleet-wide shard count, identical on every node.
	TotalShards int `yaml:"totalShards"`

	// NodeIndex is this node's index within [0, TotalNodes).
	NodeIndex int `yaml:"nodeIndex"`

	// MaxConcurrency is the number of session-start buckets the gateway
	// grants the token. Shard IDs are bucketed by id % MaxConcurrency.
	//
	// Default: 1
	MaxConcurrency int `yaml:"maxConcurrency"`

	// Intents is the event-group bitmask requested at identify time.
	Intents int64 `yaml:"intents"`

	// HandshakeTimeout bounds each shard's identify or resume handshake.
	//
	// Default: 30 seconds
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`

	// HeartbeatMisses is the number of consecutive unacknowledged heartbeats
	// tolerated before a shard declares its connection dead.
	//
	// Default: 2
	HeartbeatMisses int `yaml:"heartbeatMisses"`

	// BackoffBase and BackoffCap bound per-shard reconnect delays.
	//
	// Defaults: 1s base, 60s cap.
	BackoffBase time.Duration `yaml:"backoffBase"`
	BackoffCap  time.Duration `yaml:"backoffCap"`

	// OperationTimeout is the default timeout for individual KV operations
	// against the shared backends.
	//
	// Default: 10 seconds
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownGrace bounds how long each shard waits for the server's close
	// response during graceful shutdown.
	//
	// Default: 5 seconds
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`

	// ShutdownTimeout bounds the entire Stop sequence.
	//
	// Default: 30 seconds
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// RateLimit configures the session-start rate limiter.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// KVBuckets configures bucket names for the shared backends.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with production default values.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:   1,
		HandshakeTimeout: 30 * time.Second,
		HeartbeatMisses:  2,
		BackoffBase:      1 * time.Second,
		BackoffCap:       60 * time.Second,
		OperationTimeout: 10 * time.Second,
		ShutdownGrace:    5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		RateLimit: RateLimitConfig{
			Capacity:       1,
			Window:         5 * time.Second,
			AcquireTimeout: 60 * time.Second,
		},
		KVBuckets: KVBucketConfig{
			CacheBucket:     "pluralkit-cache",
			RateLimitBucket: "pluralkit-ratelimit",
			RateLimitTTL:    30 * time.Second,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.HeartbeatMisses == 0 {
		cfg.HeartbeatMisses = defaults.HeartbeatMisses
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = defaults.BackoffCap
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = defaults.ShutdownGrace
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.RateLimit.Capacity == 0 {
		cfg.RateLimit.Capacity = defaults.RateLimit.Capacity
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = defaults.RateLimit.Window
	}
	if cfg.RateLimit.AcquireTimeout == 0 {
		cfg.RateLimit.AcquireTimeout = defaults.RateLimit.AcquireTimeout
	}
	if cfg.KVBuckets.CacheBucket == "" {
		cfg.KVBuckets.CacheBucket = defaults.KVBuckets.CacheBucket
	}
	if cfg.KVBuckets.RateLimitBucket == "" {
		cfg.KVBuckets.RateLimitBucket = defaults.KVBuckets.RateLimitBucket
	}
	if cfg.KVBuckets.RateLimitTTL == 0 {
		cfg.KVBuckets.RateLimitTTL = defaults.KVBuckets.RateLimitTTL
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: types.ErrInvalidConfig-wrapped description of the first problem
//     found, or nil
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", types.ErrInvalidConfig)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: maxConcurrency must be >= 1, got %d", types.ErrInvalidConfig, c.MaxConcurrency)
	}
	if c.HeartbeatMisses < 1 {
		return fmt.Errorf("%w: heartbeatMisses must be >= 1, got %d", types.ErrInvalidConfig, c.HeartbeatMisses)
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("%w: backoffCap (%s) must be >= backoffBase (%s)",
			types.ErrInvalidConfig, c.BackoffCap, c.BackoffBase)
	}
	if c.RateLimit.Capacity < 1 {
		return fmt.Errorf("%w: rateLimit.capacity must be >= 1, got %d", types.ErrInvalidConfig, c.RateLimit.Capacity)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: rateLimit.window must be positive, got %s", types.ErrInvalidConfig, c.RateLimit.Window)
	}

	// A static topology is optional, but when any part of one is given it
	// must be complete and consistent.
	if c.TotalNodes != 0 || c.TotalShards != 0 {
		topo := c.topology()
		if err := topo.Validate(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
		}
	}

	return nil
}

// topology assembles the static topology described by the config.
func (c *Config) topology() types.Topology {
	return types.Topology{
		TotalNodes:     c.TotalNodes,
		TotalShards:    c.TotalShards,
		NodeIndex:      c.NodeIndex,
		MaxConcurrency: c.MaxConcurrency,
	}
}

// TestConfig returns a Config tuned for fast test execution.
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Token = "test-token"
	cfg.HandshakeTimeout = 5 * time.Second
	cfg.BackoffBase = 20 * time.Millisecond
	cfg.BackoffCap = 200 * time.Millisecond
	cfg.ShutdownGrace = 500 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.RateLimit.Window = 200 * time.Millisecond
	cfg.RateLimit.AcquireTimeout = 2 * time.Second
	cfg.KVBuckets.RateLimitTTL = 2 * time.Second

	return cfg
}
