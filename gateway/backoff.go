package gateway

import (
	rand "math/rand/v2"
	"time"
)

// retryBackoff computes the reconnect delay for the given consecutive
// failure count.
//
// The delay envelope doubles from base each failure until it reaches cap,
// and the sampled delay falls in the upper half of the envelope. The
// envelope at failure k equals the jitter floor at failure k+1, so the
// delay between consecutive attempts never shrinks; once the envelope
// reaches cap the delay is exactly cap.
func retryBackoff(failures int, base, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if failures < 1 {
		failures = 1
	}
	if failures > 32 {
		failures = 32
	}

	envelope := base
	for i := 1; i < failures; i++ {
		envelope *= 2
		if capDur > 0 && envelope >= capDur {
			return capDur
		}
	}

	half := envelope / 2
	var jitter int64
	if half > 0 {
		if rng != nil {
			jitter = rng.Int64N(int64(half) + 1)
		} else {
			jitter = rand.Int64N(int64(half) + 1) //nolint:gosec // non-crypto backoff jitter
		}
	}

	return half + time.Duration(jitter)
}

// backoffRNG returns a deterministic jitter source for a non-zero seed.
// Seed 0 returns nil, which retryBackoff treats as the package-level PRNG,
// so production shards get cheap shared randomness while tests can pin the
// delay sequence.
func backoffRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2)) //nolint:gosec // non-crypto backoff jitter
}
