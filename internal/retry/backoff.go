// Package retry queues failed notification batches for exponential-backoff
// redelivery, guarded by a per-destination circuit breaker.
package retry

import (
	"math/rand"
	"time"
)

// JitterStrategy selects how randomness is mixed into the backoff delay.
type JitterStrategy string

const (
	JitterNone         JitterStrategy = "none"
	JitterFull         JitterStrategy = "full"
	JitterEqual        JitterStrategy = "equal"
	JitterDecorrelated JitterStrategy = "decorrelated"
)

// Backoff computes retry delays. The zero value is unusable; use NewBackoff.
type Backoff struct {
	base   time.Duration
	max    time.Duration
	jitter JitterStrategy

	// randFloat is swapped in tests for determinism.
	randFloat func() float64
}

// NewBackoff creates a bounded exponential backoff with the given jitter.
func NewBackoff(base, max time.Duration, jitter JitterStrategy) Backoff {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max < base {
		max = base
	}
	return Backoff{base: base, max: max, jitter: jitter, randFloat: rand.Float64}
}

// Delay returns the wait before the given attempt (1-based). prev is the
// previously applied delay, consumed only by the decorrelated strategy.
func (b Backoff) Delay(attempt int, prev time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	exp := b.base
	for i := 1; i < attempt; i++ {
		exp *= 2
		if exp >= b.max {
			exp = b.max
			break
		}
	}

	switch b.jitter {
	case JitterFull:
		return clampDelay(time.Duration(b.randFloat()*float64(exp)), b.base, b.max)
	case JitterEqual:
		half := exp / 2
		return clampDelay(half+time.Duration(b.randFloat()*float64(half)), 0, b.max)
	case JitterDecorrelated:
		if prev <= 0 {
			prev = b.base
		}
		span := float64(3*prev - b.base)
		if span < 0 {
			span = 0
		}
		return clampDelay(b.base+time.Duration(b.randFloat()*span), b.base, b.max)
	default:
		return clampDelay(exp, 0, b.max)
	}
}

func clampDelay(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
