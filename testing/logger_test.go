package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatFields(t *testing.T) {
	require.Equal(t, "", formatFields(nil))
	require.Equal(t, " shard_id=3 resumed=true", formatFields([]any{"shard_id", 3, "resumed", true}))
	require.Equal(t, " orphan=!MISSING", formatFields([]any{"orphan"}))
}

func TestTestLogger_DropsOutputAfterTestCompletes(t *testing.T) {
	logger := &testLogger{t: t}
	logger.done.Store(true)

	// Would panic inside testing.T if the guard did not drop these.
	logger.Info("late message", "shard_id", 0)
	logger.Fatal("late fatal")
	require.False(t, t.Failed())
}
