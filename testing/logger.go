package testing

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PoisonousPython/PluralKit/types"
)

// NewTestLogger returns a logger that writes through t.Logf with key=value
// field formatting.
//
// Shard hooks and reconnect loops log from background goroutines that can
// outlive the test body; output arriving after the test has finished is
// dropped so it cannot trip the testing package's log-after-complete panic.
func NewTestLogger(t *testing.T) types.Logger {
	l := &testLogger{t: t}
	t.Cleanup(func() { l.done.Store(true) })

	return l
}

type testLogger struct {
	t    *testing.T
	done atomic.Bool
}

var _ types.Logger = (*testLogger)(nil)

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	if l.done.Load() {
		return
	}
	l.t.Logf("%s %s%s", level, msg, formatFields(keysAndValues))
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *testLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

// Fatal marks the test failed instead of aborting it: t.Fatalf must not be
// called from a non-test goroutine.
func (l *testLogger) Fatal(msg string, keysAndValues ...any) {
	l.log("FATAL", msg, keysAndValues)
	if !l.done.Load() {
		l.t.Fail()
	}
}

func formatFields(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			// Dangling key with no value.
			fmt.Fprintf(&b, "%v=!MISSING", keysAndValues[i])
		}
	}

	return b.String()
}
