package pluralkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PoisonousPython/PluralKit/internal/logging"
)

func TestShutdownCoordinator_FirstTriggerWins(t *testing.T) {
	c := NewShutdownCoordinator(logging.NewNop())
	require.False(t, c.Triggered())
	require.Empty(t, c.Reason())

	c.Trigger("signal SIGTERM")
	c.Trigger("fatal error")
	c.Trigger("signal SIGTERM")

	require.True(t, c.Triggered())
	require.Equal(t, "signal SIGTERM", c.Reason())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed after Trigger")
	}
}

func TestShutdownCoordinator_ConcurrentTriggersAreSafe(t *testing.T) {
	c := NewShutdownCoordinator(logging.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Trigger("racer")
		}()
	}
	wg.Wait()

	require.True(t, c.Triggered())
	require.Equal(t, "racer", c.Reason())
}

func TestShutdownCoordinator_Wait(t *testing.T) {
	t.Run("returns nil once triggered", func(t *testing.T) {
		c := NewShutdownCoordinator(logging.NewNop())
		go func() {
			time.Sleep(20 * time.Millisecond)
			c.Trigger("test")
		}()
		require.NoError(t, c.Wait(t.Context()))
	})

	t.Run("returns context error when the context wins", func(t *testing.T) {
		c := NewShutdownCoordinator(logging.NewNop())
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
	})
}

func TestShutdownCoordinator_SignalDetach(t *testing.T) {
	c := NewShutdownCoordinator(logging.NewNop())

	detach := c.NotifySignals()
	detach()

	// Detaching without a signal must leave the coordinator untriggered.
	require.False(t, c.Triggered())
}
