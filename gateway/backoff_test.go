package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryBackoff_DelaysNeverShrink(t *testing.T) {
	base := time.Second
	capDur := 60 * time.Second

	for seed := int64(1); seed <= 25; seed++ {
		rng := backoffRNG(seed)
		prev := time.Duration(0)
		for failures := 1; failures <= 12; failures++ {
			next := retryBackoff(failures, base, capDur, rng)
			require.GreaterOrEqual(t, next, prev,
				"seed %d: delay shrank at failure %d", seed, failures)
			require.LessOrEqual(t, next, capDur, "seed %d", seed)
			prev = next
		}
		require.Equal(t, capDur, prev, "seed %d: streak should pin at the cap", seed)
	}
}

func TestRetryBackoff_EnvelopeBounds(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 10 * time.Second
	rng := backoffRNG(7)

	for failures := 1; failures <= 6; failures++ {
		envelope := base << (failures - 1)
		d := retryBackoff(failures, base, capDur, rng)
		require.GreaterOrEqual(t, d, envelope/2, "failure %d", failures)
		require.LessOrEqual(t, d, envelope, "failure %d", failures)
	}
}

func TestRetryBackoff_CapStickiness(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 300 * time.Millisecond
	rng := backoffRNG(3)

	// Envelope reaches the cap at the third failure and must stay there.
	for failures := 3; failures <= 40; failures++ {
		require.Equal(t, capDur, retryBackoff(failures, base, capDur, rng), "failure %d", failures)
	}
}

func TestRetryBackoff_CapLessThanBase(t *testing.T) {
	base := 200 * time.Millisecond
	capDur := 100 * time.Millisecond
	rng := backoffRNG(1)

	require.Equal(t, capDur, retryBackoff(1, base, capDur, rng))
	require.Equal(t, capDur, retryBackoff(5, base, capDur, rng))
}

func TestRetryBackoff_DeterministicWithSeed(t *testing.T) {
	base := 50 * time.Millisecond
	capDur := 2 * time.Second

	run := func(seed int64) []time.Duration {
		rng := backoffRNG(seed)
		out := make([]time.Duration, 0, 8)
		for failures := 1; failures <= 8; failures++ {
			out = append(out, retryBackoff(failures, base, capDur, rng))
		}

		return out
	}

	require.Equal(t, run(7), run(7), "same seed must reproduce the same delay sequence")
	require.NotEqual(t, run(7), run(8), "different seeds should diverge")
}

func TestBackoffRNG_ZeroSeedUsesSharedPRNG(t *testing.T) {
	require.Nil(t, backoffRNG(0))
	require.NotNil(t, backoffRNG(123))
}
