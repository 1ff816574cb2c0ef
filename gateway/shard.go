package gateway

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PoisonousPython/PluralKit/cache"
	"github.com/PoisonousPython/PluralKit/ratelimit"
	"github.com/PoisonousPython/PluralKit/types"
)

// ShardConfig carries everything a single shard needs to run. The Manager
// fills it in from its own configuration; tests construct it directly.
type ShardConfig struct {
	// ID is this shard's index within [0, TotalShards).
	ID int

	// TotalShards is the fleet-wide shard count sent in the identify payload.
	TotalShards int

	// Token authenticates identify and resume payloads.
	Token string

	// URL is the gateway websocket endpoint.
	URL string

	// Intents is the event-group bitmask requested at identify time.
	Intents int64

	// HandshakeTimeout bounds the window from transport open to the ready
	// or resumed event. Zero means 30 seconds.
	HandshakeTimeout time.Duration

	// HeartbeatMisses is the number of consecutive unacknowledged heartbeats
	// tolerated before the connection is declared dead. Zero means 2.
	HeartbeatMisses int

	// BackoffBase and BackoffCap bound the reconnect delay. Zero means
	// 1s base with a 60s cap.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// BackoffSeed makes reconnect jitter deterministic when non-zero.
	BackoffSeed int64

	// ShutdownGrace bounds the wait for the server's close response during
	// graceful shutdown. Zero means 5 seconds.
	ShutdownGrace time.Duration

	// Limiter gates identify attempts across the cluster. Required.
	Limiter ratelimit.Limiter

	// Cache receives entities decoded from dispatch events. Required.
	Cache cache.Cache

	// Handler receives dispatch events after cache maintenance. Required.
	Handler types.EventHandler

	// Hooks, Logger, and Metrics are optional observability surfaces.
	Hooks   *types.Hooks
	Logger  types.Logger
	Metrics types.MetricsCollector

	// Dialer overrides the websocket dialer, letting tests point the shard
	// at a local fake gateway.
	Dialer *websocket.Dialer
}

func (c *ShardConfig) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.HeartbeatMisses <= 0 {
		c.HeartbeatMisses = 2
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
}

// Shard owns one gateway connection for one shard ID. All connection state
// except the observable phase and sequence lives in the Run loop; Run must
// not be called concurrently with itself.
type Shard struct {
	cfg     ShardConfig
	logger  types.Logger
	metrics types.MetricsCollector
	hooks   *types.Hooks
	rng     *rand.Rand

	phase   atomic.Int32
	lastSeq atomic.Int64

	// Run-loop owned.
	sessionID string
	resumeURL string
	failures  int
}

// NewShard creates a shard for the given configuration. It does not open
// any connection; call Run to drive the lifecycle.
func NewShard(cfg ShardConfig, logger types.Logger, metrics types.MetricsCollector, hooks *types.Hooks) *Shard {
	cfg.setDefaults()
	s := &Shard{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		hooks:   hooks,
		rng:     backoffRNG(cfg.BackoffSeed),
	}
	s.phase.Store(int32(types.PhaseIdle))

	return s
}

// ID returns the shard's index.
func (s *Shard) ID() int { return s.cfg.ID }

// Phase returns the current connection phase.
func (s *Shard) Phase() types.ShardPhase {
	return types.ShardPhase(s.phase.Load())
}

// Sequence returns the last dispatch sequence number observed.
func (s *Shard) Sequence() int64 { return s.lastSeq.Load() }

// RestartDelay returns the delay a supervisor should wait before re-running
// the shard after a fatal exit. It reflects the shard's accumulated failure
// streak without advancing it.
func (s *Shard) RestartDelay() time.Duration {
	return retryBackoff(s.failures, s.cfg.BackoffBase, s.cfg.BackoffCap, s.rng)
}

// Run drives the shard's connection lifecycle until ctx is cancelled or a
// fatal error occurs. It returns nil after a graceful shutdown and a
// types.ErrShardFatal-wrapped error when reconnecting cannot help. Transient
// transport failures are retried internally with jittered backoff.
func (s *Shard) Run(ctx context.Context) error {
	if s.Phase() == types.PhaseClosed {
		// Supervised restart. The prior session is gone.
		s.sessionID = ""
		s.resumeURL = ""
		s.lastSeq.Store(0)
	}

	for {
		if ctx.Err() != nil {
			s.transition(ctx, types.PhaseClosed)
			return nil
		}

		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			s.transition(ctx, types.PhaseClosed)
			return nil
		}

		if errors.Is(err, types.ErrShardFatal) {
			s.sessionID = ""
			s.resumeURL = ""
			s.lastSeq.Store(0)
			// Keep the streak growing across supervised restarts.
			s.failures++
			s.transition(ctx, types.PhaseClosed)

			return err
		}

		s.notifyError(ctx, err)
		s.transition(ctx, types.PhaseReconnecting)

		s.failures++
		delay := retryBackoff(s.failures, s.cfg.BackoffBase, s.cfg.BackoffCap, s.rng)
		s.logger.Info("shard reconnecting",
			"shard_id", s.cfg.ID,
			"delay", delay.String(),
			"error", err,
		)
		s.metrics.RecordReconnect(s.cfg.ID, s.sessionID != "")

		select {
		case <-ctx.Done():
			s.transition(ctx, types.PhaseClosed)
			return nil
		case <-time.After(delay):
		}
	}
}

// runConnection performs one full connection attempt: dial, handshake, and
// steady-state event pump. It always leaves the transport closed and the
// phase at Disconnected unless ctx was cancelled.
func (s *Shard) runConnection(ctx context.Context) error {
	s.transition(ctx, types.PhaseConnecting)

	conn, err := dialGateway(ctx, s.gatewayURL(), s.cfg.Dialer)
	if err != nil {
		s.transition(ctx, types.PhaseDisconnected)
		return err
	}
	defer conn.close() //nolint:errcheck // transport already failed or drained

	// Pump reads from a dedicated goroutine so the control loop can select
	// over frames, heartbeat ticks, and cancellation. The done channel lets
	// the pump exit even when the control loop stops draining frames.
	frames := make(chan *payload, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			p, rerr := conn.readPayload()
			if rerr != nil {
				readErr <- rerr
				return
			}
			select {
			case frames <- p:
			case <-done:
				return
			}
		}
	}()

	deadline := time.NewTimer(s.cfg.HandshakeTimeout)
	defer deadline.Stop()

	hello, err := s.awaitHello(ctx, frames, readErr, deadline.C)
	if err != nil {
		s.transition(ctx, types.PhaseDisconnected)
		return err
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		s.transition(ctx, types.PhaseDisconnected)
		return fmt.Errorf("%w: server sent heartbeat interval %dms", types.ErrConnection, hello.HeartbeatInterval)
	}

	s.transition(ctx, types.PhaseHandshaking)

	resuming := s.sessionID != "" && s.lastSeq.Load() > 0
	if resuming {
		err = conn.writePayload(opResume, resumeData{
			Token:     s.cfg.Token,
			SessionID: s.sessionID,
			Seq:       s.lastSeq.Load(),
		})
	} else {
		// A fresh identify consumes a cluster-wide session-start slot.
		if err = s.cfg.Limiter.Acquire(ctx, s.cfg.ID); err != nil {
			s.transition(ctx, types.PhaseDisconnected)
			return fmt.Errorf("shard %d: %w", s.cfg.ID, err)
		}
		err = conn.writePayload(opIdentify, identifyData{
			Token:   s.cfg.Token,
			Intents: s.cfg.Intents,
			Shard:   [2]int{s.cfg.ID, s.cfg.TotalShards},
			Properties: connProps{
				OS:      "linux",
				Browser: "pluralkit",
				Device:  "pluralkit",
			},
		})
	}
	if err != nil {
		s.transition(ctx, types.PhaseDisconnected)
		return fmt.Errorf("%w: handshake send: %v", types.ErrConnection, err)
	}

	if err = s.awaitReady(ctx, conn, frames, readErr, deadline.C, resuming); err != nil {
		s.transition(ctx, types.PhaseDisconnected)
		return err
	}

	s.transition(ctx, types.PhaseReady)
	s.failures = 0
	s.logger.Info("shard ready", "shard_id", s.cfg.ID, "session_id", s.sessionID, "resumed", resuming)
	if s.hooks != nil && s.hooks.OnShardReady != nil {
		go func(sessionID string) {
			if herr := s.hooks.OnShardReady(ctx, s.cfg.ID, sessionID); herr != nil {
				s.logger.Error("shard ready hook error", "shard_id", s.cfg.ID, "error", herr)
			}
		}(s.sessionID)
	}

	err = s.eventLoop(ctx, conn, frames, readErr, interval)
	if ctx.Err() != nil {
		return nil
	}
	s.transition(ctx, types.PhaseDisconnected)

	return err
}

// awaitHello consumes frames until the server's hello arrives.
func (s *Shard) awaitHello(ctx context.Context, frames <-chan *payload, readErr <-chan error, deadline <-chan time.Time) (*helloData, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: no hello within %s", types.ErrHandshakeTimeout, s.cfg.HandshakeTimeout)
		case rerr := <-readErr:
			return nil, s.classifyReadError(rerr)
		case p := <-frames:
			if p.Op != opHello {
				continue
			}
			var hello helloData
			if err := unmarshalData(p.Data, &hello); err != nil {
				return nil, fmt.Errorf("%w: malformed hello: %v", types.ErrConnection, err)
			}

			return &hello, nil
		}
	}
}

// awaitReady consumes frames until the handshake completes. A resume attempt
// completes on the resumed event; replayed dispatch events arriving before it
// are processed normally. A fresh identify completes on the ready event.
func (s *Shard) awaitReady(ctx context.Context, conn *conn, frames <-chan *payload, readErr <-chan error, deadline <-chan time.Time, resuming bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: no ready within %s", types.ErrHandshakeTimeout, s.cfg.HandshakeTimeout)
		case rerr := <-readErr:
			return s.classifyReadError(rerr)
		case p := <-frames:
			switch p.Op {
			case opDispatch:
				if p.Type == eventReady {
					var ready readyData
					if err := unmarshalData(p.Data, &ready); err != nil {
						return fmt.Errorf("%w: malformed ready: %v", types.ErrConnection, err)
					}
					s.sessionID = ready.SessionID
					s.resumeURL = ready.ResumeGatewayURL
					if p.Seq > 0 {
						s.lastSeq.Store(p.Seq)
					}

					return nil
				}
				if p.Type == eventResumed {
					return nil
				}
				if resuming {
					// Replay of events missed while disconnected.
					s.handleDispatch(ctx, p)
				}
			case opHeartbeat:
				if err := conn.writePayload(opHeartbeat, s.lastSeq.Load()); err != nil {
					return fmt.Errorf("%w: heartbeat send: %v", types.ErrConnection, err)
				}
			case opInvalidSess:
				s.sessionID = ""
				s.resumeURL = ""
				s.lastSeq.Store(0)

				return fmt.Errorf("%w: rejected during handshake", types.ErrSessionInvalid)
			case opReconnect:
				return fmt.Errorf("%w: server requested reconnect during handshake", types.ErrConnection)
			}
		}
	}
}

// eventLoop is the steady-state pump. It returns when the connection fails,
// the server asks for a reconnect, or ctx is cancelled (after the graceful
// close handshake).
func (s *Shard) eventLoop(ctx context.Context, conn *conn, frames <-chan *payload, readErr <-chan error, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		awaitingAck bool
		missedAcks  int
		sentAt      time.Time
	)

	for {
		select {
		case <-ctx.Done():
			s.gracefulClose(conn, readErr)
			return ctx.Err()

		case rerr := <-readErr:
			return s.classifyReadError(rerr)

		case <-ticker.C:
			if awaitingAck {
				missedAcks++
				if missedAcks >= s.cfg.HeartbeatMisses {
					return fmt.Errorf("%w: %d consecutive heartbeats unacknowledged", types.ErrConnection, missedAcks)
				}
			}
			if err := conn.writePayload(opHeartbeat, s.lastSeq.Load()); err != nil {
				return fmt.Errorf("%w: heartbeat send: %v", types.ErrConnection, err)
			}
			awaitingAck = true
			sentAt = time.Now()

		case p := <-frames:
			switch p.Op {
			case opDispatch:
				s.handleDispatch(ctx, p)
			case opHeartbeat:
				// Server-requested heartbeat, outside the normal cadence.
				if err := conn.writePayload(opHeartbeat, s.lastSeq.Load()); err != nil {
					return fmt.Errorf("%w: heartbeat send: %v", types.ErrConnection, err)
				}
			case opHeartbeatAck:
				if awaitingAck {
					s.metrics.RecordHeartbeatLatency(s.cfg.ID, time.Since(sentAt).Seconds())
				}
				awaitingAck = false
				missedAcks = 0
			case opReconnect:
				return fmt.Errorf("%w: server requested reconnect", types.ErrConnection)
			case opInvalidSess:
				var resumable bool
				_ = unmarshalData(p.Data, &resumable)
				if !resumable {
					s.sessionID = ""
					s.resumeURL = ""
					s.lastSeq.Store(0)
				}

				return fmt.Errorf("%w: invalidated in steady state (resumable=%v)", types.ErrSessionInvalid, resumable)
			}
		}
	}
}

// handleDispatch updates the sequence counter, maintains the entity cache,
// and forwards the event to the consumer. Cache failures are logged and do
// not interrupt delivery.
func (s *Shard) handleDispatch(ctx context.Context, p *payload) {
	if p.Seq > 0 {
		s.lastSeq.Store(p.Seq)
	}
	s.metrics.RecordEvent(s.cfg.ID, p.Type)

	entities, removals := extractEntities(p.Type, p.Data)
	for i := range entities {
		if err := s.cfg.Cache.Upsert(ctx, entities[i]); err != nil {
			s.logger.Warn("cache upsert failed",
				"shard_id", s.cfg.ID,
				"kind", entities[i].Kind,
				"id", entities[i].ID,
				"error", err,
			)
		}
	}
	for _, ref := range removals {
		if err := s.cfg.Cache.Delete(ctx, ref.Kind, ref.ID); err != nil && !errors.Is(err, types.ErrEntityNotFound) {
			s.logger.Warn("cache delete failed",
				"shard_id", s.cfg.ID,
				"kind", ref.Kind,
				"id", ref.ID,
				"error", err,
			)
		}
	}

	s.cfg.Handler.OnEvent(ctx, &types.Event{
		Shard:    s.cfg.ID,
		Type:     p.Type,
		Sequence: p.Seq,
		Entities: entities,
		Data:     p.Data,
	})
}

// gracefulClose performs the websocket close handshake: send a close frame,
// then wait up to ShutdownGrace for the server's close response before
// forcing the transport shut.
func (s *Shard) gracefulClose(conn *conn, readErr <-chan error) {
	if err := conn.writeClose(websocket.CloseNormalClosure); err != nil {
		s.logger.Debug("close frame send failed", "shard_id", s.cfg.ID, "error", err)
		return
	}
	select {
	case <-readErr:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("no close response from server, forcing shutdown", "shard_id", s.cfg.ID)
	}
}

// classifyReadError turns a transport read error into the shard error
// taxonomy and clears session state when the close code forbids resuming.
func (s *Shard) classifyReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if isFatalClose(ce.Code) {
			return fmt.Errorf("%w: gateway close code %d: %s", types.ErrShardFatal, ce.Code, ce.Text)
		}
		if !isResumableClose(ce.Code) {
			s.sessionID = ""
			s.resumeURL = ""
			s.lastSeq.Store(0)
		}

		return fmt.Errorf("%w: gateway close code %d: %s", types.ErrConnection, ce.Code, ce.Text)
	}

	return fmt.Errorf("%w: %v", types.ErrConnection, err)
}

// gatewayURL returns the endpoint for the next connection attempt, preferring
// the resume endpoint the server handed out at ready time.
func (s *Shard) gatewayURL() string {
	url := s.cfg.URL
	if s.resumeURL != "" && s.sessionID != "" {
		url = s.resumeURL
	}
	if !strings.Contains(url, "?") {
		url += "?v=10&encoding=json"
	}

	return url
}

// transition moves the shard to a new phase after validating the edge, then
// notifies observers. Invalid transitions are logged and dropped.
func (s *Shard) transition(ctx context.Context, to types.ShardPhase) {
	from := s.Phase()
	if from == to {
		return
	}
	if !isValidTransition(from, to) {
		s.logger.Error("invalid phase transition attempted",
			"shard_id", s.cfg.ID,
			"from", from.String(),
			"to", to.String(),
		)

		return
	}

	s.phase.Store(int32(to))

	s.logger.Debug("phase transition",
		"shard_id", s.cfg.ID,
		"from", from.String(),
		"to", to.String(),
	)

	if s.hooks != nil && s.hooks.OnShardPhaseChanged != nil {
		// Run hook in background to avoid blocking the control loop.
		go func() {
			if err := s.hooks.OnShardPhaseChanged(ctx, s.cfg.ID, from, to); err != nil {
				s.logger.Error("phase change hook error", "shard_id", s.cfg.ID, "from", from, "to", to, "error", err)
			}
		}()
	}

	s.metrics.RecordPhaseTransition(s.cfg.ID, from, to)
}

func (s *Shard) notifyError(ctx context.Context, err error) {
	if err == nil || s.hooks == nil || s.hooks.OnError == nil {
		return
	}
	go func() {
		if herr := s.hooks.OnError(ctx, err); herr != nil {
			s.logger.Error("error hook error", "shard_id", s.cfg.ID, "error", herr)
		}
	}()
}

func isValidTransition(from, to types.ShardPhase) bool {
	validTransitions := map[types.ShardPhase][]types.ShardPhase{
		types.PhaseIdle:         {types.PhaseConnecting, types.PhaseClosed},
		types.PhaseConnecting:   {types.PhaseHandshaking, types.PhaseDisconnected, types.PhaseClosed},
		types.PhaseHandshaking:  {types.PhaseReady, types.PhaseDisconnected, types.PhaseClosed},
		types.PhaseReady:        {types.PhaseDisconnected, types.PhaseClosed},
		types.PhaseDisconnected: {types.PhaseReconnecting, types.PhaseClosed},
		types.PhaseReconnecting: {types.PhaseConnecting, types.PhaseClosed},
		// Closed permits re-entry into Connecting for supervised restarts.
		types.PhaseClosed: {types.PhaseConnecting},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}

	return false
}
