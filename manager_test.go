package pluralkit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pktest "github.com/PoisonousPython/PluralKit/testing"
	"github.com/PoisonousPython/PluralKit/types"
)

type fakeInfoProvider struct {
	info *types.GatewayInfo
	err  error
}

func (p *fakeInfoProvider) RecommendedTopology(context.Context) (*types.GatewayInfo, error) {
	return p.info, p.err
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	docs  map[string]json.RawMessage
}

func (f *fakeFetcher) FetchEntity(_ context.Context, kind, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	doc, ok := f.docs[kind+"/"+id]
	if !ok {
		return nil, types.ErrEntityNotFound
	}

	return doc, nil
}

type collectingHandler struct {
	mu     sync.Mutex
	events []*types.Event
}

func (h *collectingHandler) OnEvent(_ context.Context, evt *types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
}

func (h *collectingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.events)
}

func noopHandler() types.EventHandler {
	return types.EventHandlerFunc(func(context.Context, *types.Event) {})
}

func TestNewManager_Validation(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewManager(nil, noopHandler())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("nil handler", func(t *testing.T) {
		cfg := TestConfig()
		_, err := NewManager(&cfg, nil)
		require.ErrorIs(t, err, ErrEventHandlerRequired)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := TestConfig()
		cfg.Token = ""
		_, err := NewManager(&cfg, noopHandler())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("accepts valid config", func(t *testing.T) {
		cfg := TestConfig()
		cfg.TotalNodes, cfg.TotalShards = 1, 1
		cfg.GatewayURL = "ws://127.0.0.1:1"

		mgr, err := NewManager(&cfg, noopHandler())
		require.NoError(t, err)
		require.NotNil(t, mgr.logger)
		require.NotNil(t, mgr.metrics)
		require.NotNil(t, mgr.cache)
		require.NotNil(t, mgr.coordinator)
	})
}

func TestManager_ResolveTopologyFromProvider(t *testing.T) {
	cfg := TestConfig()
	provider := &fakeInfoProvider{info: &types.GatewayInfo{
		URL:        "wss://gateway.example.net",
		ShardCount: 6,
		SessionStartLimit: types.SessionStartLimit{
			Total: 1000, Remaining: 1000, MaxConcurrency: 2,
		},
	}}

	mgr, err := NewManager(&cfg, noopHandler(), WithGatewayInfoProvider(provider))
	require.NoError(t, err)

	topo, url, err := mgr.resolveTopology(t.Context())
	require.NoError(t, err)
	require.Equal(t, "wss://gateway.example.net", url)
	require.Equal(t, types.Topology{TotalNodes: 1, TotalShards: 6, NodeIndex: 0, MaxConcurrency: 2}, topo)
	require.Equal(t, types.ShardRange{Min: 0, Max: 5}, topo.Range())
}

func TestManager_StaticTopologyWinsOverProvider(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalNodes, cfg.TotalShards, cfg.NodeIndex = 3, 10, 1
	cfg.GatewayURL = "wss://static.example.net"
	provider := &fakeInfoProvider{err: errors.New("must not be called")}

	mgr, err := NewManager(&cfg, noopHandler(), WithGatewayInfoProvider(provider))
	require.NoError(t, err)

	topo, url, err := mgr.resolveTopology(t.Context())
	require.NoError(t, err)
	require.Equal(t, "wss://static.example.net", url)
	require.Equal(t, types.ShardRange{Min: 3, Max: 6}, topo.Range())
}

func TestManager_EndToEnd(t *testing.T) {
	gw := pktest.NewFakeGateway(t)
	handler := &collectingHandler{}

	cfg := TestConfig()
	cfg.TotalNodes, cfg.TotalShards = 1, 2
	cfg.GatewayURL = gw.URL()

	mgr, err := NewManager(&cfg, handler,
		WithLogger(pktest.NewTestLogger(t)),
		WithBackoffSeed(1),
	)
	require.NoError(t, err)

	require.NoError(t, mgr.Start(t.Context()))
	t.Cleanup(func() {
		_ = mgr.Stop(context.Background())
	})

	require.Equal(t, types.ShardRange{Min: 0, Max: 1}, mgr.ShardRange())

	conns := []*pktest.FakeConn{
		gw.NextConn(5 * time.Second),
		gw.NextConn(5 * time.Second),
	}
	require.Eventually(t, func() bool {
		for id := 0; id <= 1; id++ {
			phase, owned := mgr.ShardPhase(id)
			if !owned || phase != types.PhaseReady {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "both shards should reach Ready")

	// Unowned IDs report not owned.
	_, owned := mgr.ShardPhase(5)
	require.False(t, owned)

	// Dispatch events flow through the cache into the handler.
	conns[0].SendDispatch("GUILD_CREATE", map[string]any{"id": "g1", "name": "guild one"})
	require.Eventually(t, func() bool {
		return handler.count() > 0
	}, 3*time.Second, 10*time.Millisecond)

	entry, err := mgr.Entity(t.Context(), types.KindGuild, "g1")
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Version)

	require.NoError(t, mgr.Stop(context.Background()))
	for id := 0; id <= 1; id++ {
		phase, _ := mgr.ShardPhase(id)
		require.Equal(t, types.PhaseClosed, phase)
	}
}

func TestManager_StartStopLifecycleErrors(t *testing.T) {
	gw := pktest.NewFakeGateway(t)

	cfg := TestConfig()
	cfg.TotalNodes, cfg.TotalShards = 1, 1
	cfg.GatewayURL = gw.URL()

	mgr, err := NewManager(&cfg, noopHandler(), WithLogger(pktest.NewTestLogger(t)))
	require.NoError(t, err)

	require.ErrorIs(t, mgr.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, mgr.Start(t.Context()))
	require.ErrorIs(t, mgr.Start(t.Context()), ErrAlreadyStarted)

	gw.NextConn(5 * time.Second)
	require.NoError(t, mgr.Stop(context.Background()))
	require.ErrorIs(t, mgr.Stop(context.Background()), ErrNotStarted)
}

func TestManager_EntityFetcherFallback(t *testing.T) {
	cfg := TestConfig()
	cfg.TotalNodes, cfg.TotalShards = 1, 1
	cfg.GatewayURL = "ws://127.0.0.1:1"

	fetcher := &fakeFetcher{docs: map[string]json.RawMessage{
		"user/77": json.RawMessage(`{"id":"77","username":"lynne"}`),
	}}

	mgr, err := NewManager(&cfg, noopHandler(), WithEntityFetcher(fetcher))
	require.NoError(t, err)

	// First lookup misses the cache and hits the fetcher; the result is
	// written back so the second lookup is served from cache.
	entry, err := mgr.Entity(t.Context(), types.KindUser, "77")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"77","username":"lynne"}`, string(entry.Payload))

	_, err = mgr.Entity(t.Context(), types.KindUser, "77")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls, "second lookup must be a cache hit")

	_, err = mgr.Entity(t.Context(), types.KindUser, "unknown")
	require.ErrorIs(t, err, ErrEntityNotFound)
}
