package pluralkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PoisonousPython/PluralKit/cache"
	"github.com/PoisonousPython/PluralKit/gateway"
	"github.com/PoisonousPython/PluralKit/internal/logging"
	"github.com/PoisonousPython/PluralKit/internal/metrics"
	"github.com/PoisonousPython/PluralKit/ratelimit"
	"github.com/PoisonousPython/PluralKit/types"
)

// Manager owns one node's slice of the shard fleet. It resolves the cluster
// topology, computes this node's contiguous shard range, runs one gateway
// connection per owned shard, and supervises them until shutdown.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - Shard phases are atomic; the shard table is immutable after Start
//
// Lifecycle:
//   - Create with NewManager()
//   - Call Start() to resolve the topology and spin up shards
//   - Use hooks to react to shard lifecycle events
//   - Call Stop() for graceful shutdown, or Run() to block until a signal
type Manager struct {
	cfg     Config
	handler types.EventHandler

	// Optional dependencies
	hooks        *types.Hooks
	metrics      types.MetricsCollector
	logger       types.Logger
	cache        cache.Cache
	limiter      ratelimit.Limiter
	infoProvider types.GatewayInfoProvider
	fetcher      types.EntityFetcher
	dialer       *websocket.Dialer
	backoffSeed  int64

	// Resolved at Start
	topology   types.Topology
	shardRange types.ShardRange
	gatewayURL string
	shards     []*gateway.Shard

	coordinator *ShutdownCoordinator

	// Lifecycle management
	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// loggerSetter and metricsSetter let the Manager push its observability
// surfaces into backends built by the caller.
type loggerSetter interface{ SetLogger(types.Logger) }

type metricsSetter interface{ SetMetrics(types.MetricsCollector) }

// NewManager creates a Manager.
//
// Returns a concrete *Manager struct following the "accept interfaces,
// return structs" principle. Consumers can define their own interfaces for
// testing if needed.
//
// Parameters:
//   - cfg: Runtime configuration with parsed durations
//   - handler: Consumer for dispatch events; required
//   - opts: Optional configuration (cache, limiter, hooks, metrics, logger)
//
// Returns:
//   - *Manager: Initialized manager instance
//   - error: Validation error if configuration is invalid
//
// Example:
//
//	cfg := pluralkit.DefaultConfig()
//	cfg.Token = token
//	cfg.TotalNodes, cfg.TotalShards, cfg.NodeIndex = 4, 64, nodeIndex
//	mgr, err := pluralkit.NewManager(&cfg, handler,
//	    pluralkit.WithCache(sharedCache),
//	    pluralkit.WithRateLimiter(sharedLimiter),
//	)
func NewManager(cfg *Config, handler types.EventHandler, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if handler == nil {
		return nil, ErrEventHandlerRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	m := &Manager{
		cfg:          *cfg,
		handler:      handler,
		hooks:        options.hooks,
		logger:       options.logger,
		metrics:      options.metrics,
		cache:        options.cache,
		limiter:      options.limiter,
		infoProvider: options.infoProvider,
		fetcher:      options.fetcher,
		dialer:       options.dialer,
		backoffSeed:  options.backoffSeed,
	}

	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNop()
	}
	if m.infoProvider == nil {
		m.infoProvider = gateway.NewInfoClient(cfg.Token, "")
	}
	if m.cache == nil {
		m.cache = cache.NewLocal()
	}
	m.coordinator = NewShutdownCoordinator(m.logger)

	return m, nil
}

// Start resolves the topology, computes this node's shard range, and brings
// every owned shard up under supervision. It returns once all shard
// goroutines are launched; shards reach Ready asynchronously.
//
// Returns:
//   - error: ErrAlreadyStarted, topology resolution failure, or nil
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	topo, url, err := m.resolveTopology(ctx)
	if err != nil {
		m.started.Store(false)
		return err
	}

	m.mu.Lock()
	m.topology = topo
	m.shardRange = topo.Range()
	m.gatewayURL = url
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	if m.limiter == nil {
		m.limiter = ratelimit.NewLocal(topo.MaxConcurrency, m.cfg.RateLimit.Capacity,
			m.cfg.RateLimit.Window, m.cfg.RateLimit.AcquireTimeout)
	}
	m.pushObservability()

	m.logger.Info("starting shard fleet",
		"node_index", topo.NodeIndex,
		"total_nodes", topo.TotalNodes,
		"total_shards", topo.TotalShards,
		"shard_min", m.shardRange.Min,
		"shard_max", m.shardRange.Max,
	)

	shards := make([]*gateway.Shard, 0, m.shardRange.Count())
	for id := m.shardRange.Min; id <= m.shardRange.Max; id++ {
		shard := gateway.NewShard(gateway.ShardConfig{
			ID:               id,
			TotalShards:      topo.TotalShards,
			Token:            m.cfg.Token,
			URL:              url,
			Intents:          m.cfg.Intents,
			HandshakeTimeout: m.cfg.HandshakeTimeout,
			HeartbeatMisses:  m.cfg.HeartbeatMisses,
			BackoffBase:      m.cfg.BackoffBase,
			BackoffCap:       m.cfg.BackoffCap,
			BackoffSeed:      m.backoffSeed,
			ShutdownGrace:    m.cfg.ShutdownGrace,
			Limiter:          m.limiter,
			Cache:            m.cache,
			Handler:          m.handler,
			Dialer:           m.dialer,
		}, m.logger, m.metrics, m.hooks)
		shards = append(shards, shard)
	}

	m.mu.Lock()
	m.shards = shards
	m.mu.Unlock()

	m.metrics.RecordShardCount(len(shards))

	for _, shard := range shards {
		m.wg.Add(1)
		go m.supervise(shard)
	}

	return nil
}

// supervise runs a shard's lifecycle and restarts it after fatal exits.
// A fatal exit means the session was torn down in a way reconnecting inside
// the shard could not fix; the supervisor waits out the shard's backoff and
// runs it again from scratch.
func (m *Manager) supervise(shard *gateway.Shard) {
	defer m.wg.Done()

	for {
		err := shard.Run(m.ctx)
		if err == nil || m.ctx.Err() != nil {
			return
		}

		delay := shard.RestartDelay()
		m.logger.Error("shard exited fatally, restarting",
			"shard_id", shard.ID(),
			"delay", delay.String(),
			"error", err,
		)
		m.metrics.RecordShardRestart(shard.ID())
		m.notifyError(err)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Stop shuts the fleet down gracefully: every shard performs the websocket
// close handshake, bounded by ShutdownGrace, and Stop waits for all of them
// up to ShutdownTimeout. Stop is idempotent; concurrent calls return
// ErrNotStarted after the first wins.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.started.CompareAndSwap(true, false) {
		return ErrNotStarted
	}

	m.mu.RLock()
	cancel := m.cancel
	m.mu.RUnlock()
	if cancel == nil {
		return ErrNotStarted
	}

	m.coordinator.Trigger("stop requested")
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	deadline := m.cfg.ShutdownTimeout
	select {
	case <-done:
		m.logger.Info("shard fleet stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, ctx.Err())
	case <-time.After(deadline):
		return fmt.Errorf("%w: shards still draining after %s", ErrShutdownTimeout, deadline)
	}
}

// Run starts the fleet and blocks until an OS signal, a shutdown trigger, or
// ctx cancellation, then stops it. It is the main loop for binaries that do
// nothing but run a Manager.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	detach := m.coordinator.NotifySignals()
	defer detach()

	select {
	case <-ctx.Done():
		m.coordinator.Trigger("context cancelled")
	case <-m.coordinator.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
	defer cancel()

	err := m.Stop(stopCtx)
	if errors.Is(err, ErrNotStarted) {
		// A concurrent Stop already won; nothing left to do.
		return nil
	}

	return err
}

// Entity returns an entity from the cache, falling back to the configured
// EntityFetcher on a miss. Fetched entities are written back with a
// backend-assigned version so later gateway events overwrite them.
//
// Returns:
//   - types.CacheEntry: The cached or freshly fetched entity
//   - error: ErrEntityNotFound when missing everywhere, fetch or cache errors
func (m *Manager) Entity(ctx context.Context, kind, id string) (types.CacheEntry, error) {
	entry, err := m.cache.Get(ctx, kind, id)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrEntityNotFound) || m.fetcher == nil {
		return types.CacheEntry{}, err
	}

	payload, err := m.fetcher.FetchEntity(ctx, kind, id)
	if err != nil {
		return types.CacheEntry{}, fmt.Errorf("fetch %s/%s: %w", kind, id, err)
	}

	entry = types.CacheEntry{Kind: kind, ID: id, Payload: payload}
	if err := m.cache.Upsert(ctx, entry); err != nil {
		m.logger.Warn("cache writeback failed", "kind", kind, "id", id, "error", err)
	}

	return entry, nil
}

// Topology returns the resolved cluster topology. Zero value before Start.
func (m *Manager) Topology() types.Topology {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.topology
}

// ShardRange returns this node's owned shard range. Zero value before Start.
func (m *Manager) ShardRange() types.ShardRange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.shardRange
}

// ShardPhase returns the current phase of an owned shard.
//
// Returns:
//   - types.ShardPhase: Current phase, PhaseIdle for unowned IDs
//   - bool: Whether this node owns the shard ID
func (m *Manager) ShardPhase(shardID int) (types.ShardPhase, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.shards == nil || !m.shardRange.Contains(shardID) {
		return types.PhaseIdle, false
	}

	return m.shards[shardID-m.shardRange.Min].Phase(), true
}

// Shutdown exposes the shutdown coordinator so embedding applications can
// funnel their own fatal errors into the same trigger.
func (m *Manager) Shutdown() *ShutdownCoordinator {
	return m.coordinator
}

// resolveTopology produces the topology and gateway URL for this node. With
// static configuration it validates and uses it as-is; otherwise it asks the
// info provider and treats the recommended shard count as a single-node
// cluster.
func (m *Manager) resolveTopology(ctx context.Context) (types.Topology, string, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	if m.cfg.TotalNodes != 0 || m.cfg.TotalShards != 0 {
		topo := m.cfg.topology()
		if err := topo.Validate(); err != nil {
			return types.Topology{}, "", err
		}

		url := m.cfg.GatewayURL
		if url == "" {
			info, err := m.infoProvider.RecommendedTopology(opCtx)
			if err != nil {
				return types.Topology{}, "", fmt.Errorf("resolve gateway url: %w", err)
			}
			url = info.URL
		}

		return topo, url, nil
	}

	info, err := m.infoProvider.RecommendedTopology(opCtx)
	if err != nil {
		return types.Topology{}, "", fmt.Errorf("resolve topology: %w", err)
	}

	topo := types.Topology{
		TotalNodes:     1,
		TotalShards:    info.ShardCount,
		NodeIndex:      0,
		MaxConcurrency: info.SessionStartLimit.MaxConcurrency,
	}
	if topo.MaxConcurrency <= 0 {
		topo.MaxConcurrency = m.cfg.MaxConcurrency
	}
	if err := topo.Validate(); err != nil {
		return types.Topology{}, "", err
	}

	url := m.cfg.GatewayURL
	if url == "" {
		url = info.URL
	}

	return topo, url, nil
}

// pushObservability hands the manager's logger and metrics to backends that
// accept them, so caller-built shared backends report through one surface.
func (m *Manager) pushObservability() {
	for _, dep := range []any{m.cache, m.limiter} {
		if ls, ok := dep.(loggerSetter); ok {
			ls.SetLogger(m.logger)
		}
		if ms, ok := dep.(metricsSetter); ok {
			ms.SetMetrics(m.metrics)
		}
	}
}

func (m *Manager) notifyError(err error) {
	if m.hooks == nil || m.hooks.OnError == nil {
		return
	}
	go func() {
		if herr := m.hooks.OnError(m.ctx, err); herr != nil {
			m.logger.Error("error hook error", "error", herr)
		}
	}()
}
