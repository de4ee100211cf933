package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelayFollowsExponentialScheduleToCap(t *testing.T) {
	base := 5 * time.Second
	cap := 300 * time.Second
	c := New(base, cap, 30*time.Second)
	expected := base
	for i := 0; i < 10; i++ {
		d := c.NextDelay("bsky.network", Failure{})
		lo := time.Duration(float64(expected) * 0.5)
		hi := time.Duration(float64(expected) * 1.5)
		if d < lo || d >= hi {
			t.Fatalf("attempt %d: delay %v outside jittered [%v, %v)", i, d, lo, hi)
		}
		if expected < cap {
			expected *= 2
			if expected > cap {
				expected = cap
			}
		}
	}
	if got := c.Attempts("bsky.network"); got != 10 {
		t.Fatalf("attempts = %d, want 10", got)
	}
}

func TestJitterBounds(t *testing.T) {
	c := New(10*time.Second, 300*time.Second, 30*time.Second)
	for i := 0; i < 100; i++ {
		d := c.NextDelay("s", Failure{})
		c.Reset("s")
		if d < 5*time.Second || d >= 15*time.Second {
			t.Fatalf("first-attempt delay %v outside [5s, 15s)", d)
		}
	}
}

func TestResetReturnsToBase(t *testing.T) {
	c := New(5*time.Second, 300*time.Second, 30*time.Second)
	for i := 0; i < 6; i++ {
		c.NextDelay("s", Failure{})
	}
	c.Reset("s")
	if got := c.Attempts("s"); got != 0 {
		t.Fatalf("attempts after reset = %d", got)
	}
	d := c.NextDelay("s", Failure{})
	if d >= time.Duration(float64(5*time.Second)*1.5) {
		t.Fatalf("delay after reset = %v, want base schedule", d)
	}
}

func TestRateLimitHintOverrides(t *testing.T) {
	c := New(5*time.Second, 300*time.Second, 30*time.Second)

	d := c.NextDelay("s", Failure{RateLimited: true, Hint: 42 * time.Second, HasHint: true})
	if d != 42*time.Second {
		t.Fatalf("hinted wait = %v, want 42s", d)
	}
	d = c.NextDelay("s", Failure{RateLimited: true})
	if d != 30*time.Second {
		t.Fatalf("default rate-limit wait = %v, want 30s", d)
	}
	d = c.NextDelay("s", Failure{RateLimited: true, Hint: -5 * time.Second, HasHint: true})
	if d != 0 {
		t.Fatalf("negative hint should clamp to 0, got %v", d)
	}
}

func TestSourcesBackOffIndependently(t *testing.T) {
	c := New(5*time.Second, 300*time.Second, 30*time.Second)
	for i := 0; i < 4; i++ {
		c.NextDelay("failing.example", Failure{})
	}
	if got := c.Attempts("healthy.example"); got != 0 {
		t.Fatalf("unrelated source has attempts = %d", got)
	}
}

func TestWaitObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := Wait(ctx, 10*time.Second)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait did not return promptly on cancel: %v", elapsed)
	}
}

func TestWaitZeroReturnsImmediately(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Fatalf("zero wait: %v", err)
	}
}
