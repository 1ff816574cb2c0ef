package pluralkit

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/PoisonousPython/PluralKit/types"
)

// ShutdownCoordinator funnels every shutdown source (OS signals, fatal
// internal errors, explicit Stop calls) into a single idempotent trigger.
// The first trigger wins; later calls are no-ops. Consumers select on Done.
type ShutdownCoordinator struct {
	once   sync.Once
	done   chan struct{}
	logger types.Logger

	mu     sync.Mutex
	reason string
}

// NewShutdownCoordinator creates a coordinator. The logger records which
// source won the trigger race.
func NewShutdownCoordinator(logger types.Logger) *ShutdownCoordinator {
	return &ShutdownCoordinator{
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Trigger requests shutdown. Safe to call from any goroutine, any number of
// times; only the first call has an effect.
//
// Parameters:
//   - reason: Human-readable source of the shutdown, for the logs
func (c *ShutdownCoordinator) Trigger(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()

		c.logger.Info("shutdown triggered", "reason", reason)
		close(c.done)
	})
}

// Done returns a channel closed when shutdown has been triggered.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// Triggered reports whether shutdown has been requested.
func (c *ShutdownCoordinator) Triggered() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Reason returns the winning trigger's reason, or "" before any trigger.
func (c *ShutdownCoordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reason
}

// Wait blocks until shutdown is triggered or ctx expires.
//
// Returns:
//   - error: ctx.Err() when the context won, nil when shutdown triggered
func (c *ShutdownCoordinator) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

// NotifySignals triggers the coordinator on SIGINT or SIGTERM. It returns a
// function that detaches the signal handler; the caller should defer it.
func (c *ShutdownCoordinator) NotifySignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			c.Trigger("signal " + sig.String())
		case <-stop:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}
