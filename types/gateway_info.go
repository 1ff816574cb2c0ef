package types

import (
	"context"
	"time"
)

// SessionStartLimit is the gateway-reported limit on new session handshakes.
type SessionStartLimit struct {
	// Total is the total number of session starts allowed per reset window.
	Total int `json:"total"`

	// Remaining is the number of session starts left in the current window.
	Remaining int `json:"remaining"`

	// ResetAfter is the time until the limit window resets.
	ResetAfter time.Duration `json:"reset_after"`

	// MaxConcurrency is the number of identify requests allowed per 5-second
	// rate limit window.
	MaxConcurrency int `json:"max_concurrency"`
}

// GatewayInfo is the gateway-recommended connection topology.
type GatewayInfo struct {
	// URL is the websocket endpoint to connect shards to.
	URL string `json:"url"`

	// ShardCount is the recommended total shard count.
	ShardCount int `json:"shards"`

	// SessionStartLimit bounds concurrent session starts.
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GatewayInfoProvider supplies a recommended topology when no static topology
// is configured. The manager then treats the whole recommended range as a
// single-node cluster.
type GatewayInfoProvider interface {
	// RecommendedTopology queries the gateway for its recommended shard
	// count, connection URL, and session-start limit.
	RecommendedTopology(ctx context.Context) (*GatewayInfo, error)
}
