package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PoisonousPython/PluralKit/types"
)

const defaultAPIBase = "https://discord.com/api/v10"

// InfoClient fetches the gateway bot endpoint, which reports the websocket
// URL, the recommended shard count, and the session-start limit for the
// token. It implements types.GatewayInfoProvider.
type InfoClient struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ types.GatewayInfoProvider = (*InfoClient)(nil)

// NewInfoClient creates a client for the platform REST API. baseURL may be
// empty to use the production endpoint; tests point it at a local server.
func NewInfoClient(token, baseURL string) *InfoClient {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}

	return &InfoClient{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// RecommendedTopology queries the gateway bot endpoint.
//
// Returns:
//   - *types.GatewayInfo: Websocket URL, shard count, and session-start limit
//   - error: types.ErrConnectivity-wrapped on transport failure
func (c *InfoClient) RecommendedTopology(ctx context.Context) (*types.GatewayInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gateway/bot", nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway info request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway info request: %v", types.ErrConnectivity, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gateway info request: status %d: %s", resp.StatusCode, body)
	}

	var raw struct {
		URL               string `json:"url"`
		Shards            int    `json:"shards"`
		SessionStartLimit struct {
			Total          int   `json:"total"`
			Remaining      int   `json:"remaining"`
			ResetAfter     int64 `json:"reset_after"`
			MaxConcurrency int   `json:"max_concurrency"`
		} `json:"session_start_limit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode gateway info: %w", err)
	}

	return &types.GatewayInfo{
		URL:        raw.URL,
		ShardCount: raw.Shards,
		SessionStartLimit: types.SessionStartLimit{
			Total:          raw.SessionStartLimit.Total,
			Remaining:      raw.SessionStartLimit.Remaining,
			ResetAfter:     time.Duration(raw.SessionStartLimit.ResetAfter) * time.Millisecond,
			MaxConcurrency: raw.SessionStartLimit.MaxConcurrency,
		},
	}, nil
}
