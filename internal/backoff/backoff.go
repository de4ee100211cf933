package backoff

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Failure describes one failed exchange for delay computation.
type Failure struct {
	// RateLimited marks a rate-limit response rather than an error.
	RateLimited bool
	// Hint is the server-supplied wait, valid when HasHint is true.
	// Negative hints (clock skew on reset timestamps) clamp to zero.
	Hint    time.Duration
	HasHint bool
}

// Controller tracks failure counts per source and computes retry delays.
// Safe for concurrent use across sources.
type Controller struct {
	base          time.Duration
	max           time.Duration
	rateLimitWait time.Duration

	mu       sync.Mutex
	attempts map[string]int
	rng      *rand.Rand
}

// New creates a Controller. base and max bound the exponential schedule;
// defaultRateLimitWait applies when a rate-limit response carries no
// usable hint.
func New(base, max, defaultRateLimitWait time.Duration) *Controller {
	return &Controller{
		base:          base,
		max:           max,
		rateLimitWait: defaultRateLimitWait,
		attempts:      make(map[string]int),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextDelay records a failed exchange for sourceID and returns how long
// to wait before the next attempt. Every failure advances the attempt
// counter; rate-limited failures wait out the server hint instead of the
// computed delay.
func (c *Controller) NextDelay(sourceID string, f Failure) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempt := c.attempts[sourceID]
	c.attempts[sourceID] = attempt + 1

	if f.RateLimited {
		if !f.HasHint {
			return c.rateLimitWait
		}
		if f.Hint < 0 {
			return 0
		}
		return f.Hint
	}

	delay := c.base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.max {
			delay = c.max
			break
		}
	}
	if delay > c.max {
		delay = c.max
	}
	// Uniform jitter in [0.5, 1.5) to spread synchronized retries.
	jitter := 0.5 + c.rng.Float64()
	return time.Duration(float64(delay) * jitter)
}

// Reset clears the failure history for sourceID after a successful
// exchange.
func (c *Controller) Reset(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, sourceID)
}

// Attempts reports the current consecutive-failure count for sourceID.
func (c *Controller) Attempts(sourceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[sourceID]
}

// Wait sleeps for d or until ctx is cancelled, whichever comes first.
// Never an uninterruptible sleep: cancellation is observed immediately.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
