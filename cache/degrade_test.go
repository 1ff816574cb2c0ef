package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/PoisonousPython/PluralKit/types"
)

// capturingLogger records warn-level fields so tests can inspect the
// degrade path's error wrapping.
type capturingLogger struct {
	mu    sync.Mutex
	warns [][]any
}

func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Warn(_ string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, keysAndValues)
}

func (l *capturingLogger) lastWarnError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, fields := range l.warns {
		for i := 0; i+1 < len(fields); i += 2 {
			if fields[i] == "error" {
				if err, ok := fields[i+1].(error); ok {
					return err
				}
			}
		}
	}

	return nil
}

func TestShared_DegradeWarningWrapsCacheUnavailable(t *testing.T) {
	logger := &capturingLogger{}
	s := NewShared(nil)
	s.SetLogger(logger)

	s.degrade(nats.ErrConnectionClosed)

	require.True(t, s.degraded(), "connectivity failure should enter pass-through mode")
	logged := logger.lastWarnError()
	require.Error(t, logged)
	require.True(t, errors.Is(logged, types.ErrCacheUnavailable))
}

func TestShared_DegradeIgnoresNonConnectivityErrors(t *testing.T) {
	logger := &capturingLogger{}
	s := NewShared(nil)
	s.SetLogger(logger)

	s.degrade(errors.New("malformed payload"))

	require.False(t, s.degraded())
	require.Empty(t, logger.warns)
}
