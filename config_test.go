package pluralkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 1, cfg.MaxConcurrency)
	require.Equal(t, 2, cfg.HeartbeatMisses)
	require.Equal(t, 5*time.Second, cfg.RateLimit.Window)
	require.Equal(t, 1, cfg.RateLimit.Capacity)
	require.NotEmpty(t, cfg.KVBuckets.CacheBucket)
	require.NotEmpty(t, cfg.KVBuckets.RateLimitBucket)
	require.GreaterOrEqual(t, cfg.KVBuckets.RateLimitTTL, cfg.RateLimit.Window,
		"spent windows must outlive at least one rate limit window")
}

func TestSetDefaults(t *testing.T) {
	cfg := Config{Token: "t"}
	SetDefaults(&cfg)

	require.Equal(t, DefaultConfig().HandshakeTimeout, cfg.HandshakeTimeout)
	require.Equal(t, DefaultConfig().BackoffCap, cfg.BackoffCap)
	require.Equal(t, DefaultConfig().RateLimit, cfg.RateLimit)

	// Explicit values survive.
	cfg2 := Config{Token: "t", HeartbeatMisses: 5, BackoffBase: time.Minute, BackoffCap: 2 * time.Minute}
	SetDefaults(&cfg2)
	require.Equal(t, 5, cfg2.HeartbeatMisses)
	require.Equal(t, time.Minute, cfg2.BackoffBase)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Token = "token"
		cfg.TotalNodes = 2
		cfg.TotalShards = 8
		cfg.NodeIndex = 1
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid static topology", mutate: func(*Config) {}, wantErr: false},
		{name: "valid without topology", mutate: func(c *Config) {
			c.TotalNodes, c.TotalShards, c.NodeIndex = 0, 0, 0
		}, wantErr: false},
		{name: "missing token", mutate: func(c *Config) { c.Token = "" }, wantErr: true},
		{name: "node index out of range", mutate: func(c *Config) { c.NodeIndex = 2 }, wantErr: true},
		{name: "negative node index", mutate: func(c *Config) { c.NodeIndex = -1 }, wantErr: true},
		{name: "more nodes than shards", mutate: func(c *Config) { c.TotalNodes = 16 }, wantErr: true},
		{name: "shards without nodes", mutate: func(c *Config) { c.TotalNodes = 0 }, wantErr: true},
		{name: "cap below base", mutate: func(c *Config) { c.BackoffCap = c.BackoffBase / 2 }, wantErr: true},
		{name: "zero rate limit window", mutate: func(c *Config) { c.RateLimit.Window = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestConfig_YAML demonstrates that time.Duration works directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
token: "bot-token"
gatewayUrl: "wss://gateway.example.net"
totalNodes: 4
totalShards: 64
nodeIndex: 2
maxConcurrency: 16
handshakeTimeout: 45s
heartbeatMisses: 3
backoffBase: 2s
backoffCap: 2m
shutdownGrace: 10s
shutdownTimeout: 1m
rateLimit:
  capacity: 1
  window: 5s
  acquireTimeout: 90s
kvBuckets:
  cacheBucket: "pk-cache"
  rateLimitBucket: "pk-ratelimit"
  rateLimitTtl: 30s
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	// Verify durations were parsed correctly
	require.Equal(t, "bot-token", cfg.Token)
	require.Equal(t, 4, cfg.TotalNodes)
	require.Equal(t, 64, cfg.TotalShards)
	require.Equal(t, 2, cfg.NodeIndex)
	require.Equal(t, 16, cfg.MaxConcurrency)
	require.Equal(t, 45*time.Second, cfg.HandshakeTimeout)
	require.Equal(t, 3, cfg.HeartbeatMisses)
	require.Equal(t, 2*time.Second, cfg.BackoffBase)
	require.Equal(t, 2*time.Minute, cfg.BackoffCap)
	require.Equal(t, 10*time.Second, cfg.ShutdownGrace)
	require.Equal(t, time.Minute, cfg.ShutdownTimeout)
	require.Equal(t, 5*time.Second, cfg.RateLimit.Window)
	require.Equal(t, 90*time.Second, cfg.RateLimit.AcquireTimeout)
	require.Equal(t, "pk-cache", cfg.KVBuckets.CacheBucket)
	require.Equal(t, 30*time.Second, cfg.KVBuckets.RateLimitTTL)

	require.NoError(t, cfg.Validate())
}

// TestConfig_DefaultsWithPartialYAML demonstrates using SetDefaults with partial config
func TestConfig_DefaultsWithPartialYAML(t *testing.T) {
	yamlConfig := `
token: "bot-token"
heartbeatMisses: 4
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	SetDefaults(&cfg)

	// Custom values preserved
	require.Equal(t, 4, cfg.HeartbeatMisses)
	// Unset fields take production defaults
	require.Equal(t, DefaultConfig().HandshakeTimeout, cfg.HandshakeTimeout)
	require.Equal(t, DefaultConfig().RateLimit.Window, cfg.RateLimit.Window)
}

func TestConfigValidate_TopologyErrorsWrapBothSentinels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token = "token"
	cfg.TotalNodes = 4
	cfg.TotalShards = 2

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
}
