package notify

import (
	"math"
	"math/rand"
	"time"
)

// Backoff decides whether and when to retry after a failed handshake or a
// dropped connection. attempt starts at 1 for the first retry.
type Backoff interface {
	Next(attempt int) (delay time.Duration, ok bool)
}

// FixedBackoff waits the same delay between a bounded number of attempts.
type FixedBackoff struct {
	Delay       time.Duration
	MaxAttempts int
}

// DefaultBackoff is 5 attempts, 1s apart.
var DefaultBackoff = FixedBackoff{Delay: time.Second, MaxAttempts: 5}

func (b FixedBackoff) Next(attempt int) (time.Duration, bool) {
	if attempt > b.MaxAttempts {
		return 0, false
	}
	return b.Delay, true
}

// ExponentialBackoff doubles the delay per attempt with up to 50% jitter,
// capped at MaxDelay. MaxAttempts 0 retries forever.
type ExponentialBackoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func (b ExponentialBackoff) Next(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt > b.MaxAttempts {
		return 0, false
	}
	base := b.BaseDelay
	if base == 0 {
		base = time.Second
	}
	maxDelay := b.MaxDelay
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}
	jitter := time.Duration(rand.Float64() * float64(base) * 0.5)
	delay := time.Duration(math.Min(
		float64(base)*math.Pow(2, float64(attempt-1))+float64(jitter),
		float64(maxDelay),
	))
	return delay, true
}
