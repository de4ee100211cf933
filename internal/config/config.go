package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// MaxConcurrentStreams bounds how many sources stream at once (K).
	MaxConcurrentStreams int `json:"maxConcurrentStreams"`
	// RoundSeconds caps the wall-clock length of one scheduling round (D).
	RoundSeconds int `json:"roundSeconds"`
	// QuiescenceSeconds is how long a whole batch must be event-free
	// before its round ends early.
	QuiescenceSeconds int `json:"quiescenceSeconds"`
	// CheckpointEvery flushes the checkpoint after this many records.
	CheckpointEvery int `json:"checkpointEvery"`
	// CheckpointIntervalSeconds flushes the checkpoint after this much
	// time even if fewer records arrived.
	CheckpointIntervalSeconds int `json:"checkpointIntervalSeconds"`
	// ShutdownGraceSeconds bounds how long shutdown waits for consumers
	// to acknowledge cancellation before force-closing.
	ShutdownGraceSeconds int `json:"shutdownGraceSeconds"`

	Backoff BackoffConfig `json:"backoff"`
}

// BackoffConfig captures the retry policy applied after failed exchanges.
type BackoffConfig struct {
	BaseSeconds int `json:"baseSeconds"`
	MaxSeconds  int `json:"maxSeconds"`
	// RateLimitWaitSeconds is used when a rate-limit response carries no
	// usable wait hint.
	RateLimitWaitSeconds int `json:"rateLimitWaitSeconds"`
}

// Default returns built-in defaults. The backoff and checkpoint numbers
// carry over from the original collectors (5s base, 300s cap, commit
// every 20 records).
func Default() Config {
	return Config{
		MaxConcurrentStreams:      8,
		RoundSeconds:              300,
		QuiescenceSeconds:         30,
		CheckpointEvery:           20,
		CheckpointIntervalSeconds: 5,
		ShutdownGraceSeconds:      10,
		Backoff: BackoffConfig{
			BaseSeconds:          5,
			MaxSeconds:           300,
			RateLimitWaitSeconds: 30,
		},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the scheduler cannot run with.
func (c Config) Validate() error {
	if c.MaxConcurrentStreams < 1 {
		return fmt.Errorf("maxConcurrentStreams must be >= 1, got %d", c.MaxConcurrentStreams)
	}
	if c.RoundSeconds < 1 {
		return fmt.Errorf("roundSeconds must be >= 1, got %d", c.RoundSeconds)
	}
	if c.QuiescenceSeconds < 1 {
		return fmt.Errorf("quiescenceSeconds must be >= 1, got %d", c.QuiescenceSeconds)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("checkpointEvery must be >= 1, got %d", c.CheckpointEvery)
	}
	if c.Backoff.BaseSeconds < 1 || c.Backoff.MaxSeconds < c.Backoff.BaseSeconds {
		return fmt.Errorf("backoff base/max invalid: base=%d max=%d", c.Backoff.BaseSeconds, c.Backoff.MaxSeconds)
	}
	return nil
}

// RoundDuration returns D as a duration.
func (c Config) RoundDuration() time.Duration {
	return time.Duration(c.RoundSeconds) * time.Second
}

// QuiescenceWindow returns the idle window as a duration.
func (c Config) QuiescenceWindow() time.Duration {
	return time.Duration(c.QuiescenceSeconds) * time.Second
}

// CheckpointInterval returns T as a duration.
func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSeconds) * time.Second
}

// ShutdownGrace returns the drain grace period as a duration.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// BaseDelay returns the backoff base as a duration.
func (b BackoffConfig) BaseDelay() time.Duration {
	return time.Duration(b.BaseSeconds) * time.Second
}

// MaxDelay returns the backoff cap as a duration.
func (b BackoffConfig) MaxDelay() time.Duration {
	return time.Duration(b.MaxSeconds) * time.Second
}

// RateLimitWait returns the fallback rate-limit wait as a duration.
func (b BackoffConfig) RateLimitWait() time.Duration {
	return time.Duration(b.RateLimitWaitSeconds) * time.Second
}
