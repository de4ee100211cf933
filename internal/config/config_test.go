package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.MaxConcurrentStreams != 8 {
		t.Fatalf("default K = %d, want 8", cfg.MaxConcurrentStreams)
	}
	if cfg.Backoff.BaseDelay() != 5*time.Second || cfg.Backoff.MaxDelay() != 300*time.Second {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Backoff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"maxConcurrentStreams": 2, "roundSeconds": 60, "backoff": {"baseSeconds": 1, "maxSeconds": 10, "rateLimitWaitSeconds": 3}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxConcurrentStreams != 2 || cfg.RoundSeconds != 60 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	// Untouched keys keep defaults.
	if cfg.CheckpointEvery != 20 {
		t.Fatalf("checkpointEvery = %d, want default 20", cfg.CheckpointEvery)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"maxConcurrentStreams": 0}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("STREAMER_MAX_CONCURRENT_STREAMS", "3")
	t.Setenv("STREAMER_QUIESCENCE_SECONDS", "7")
	t.Setenv("STREAMER_BACKOFF_BASE_SECONDS", "bogus")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.MaxConcurrentStreams != 3 {
		t.Fatalf("env override not applied: %d", cfg.MaxConcurrentStreams)
	}
	if cfg.QuiescenceWindow() != 7*time.Second {
		t.Fatalf("quiescence = %v, want 7s", cfg.QuiescenceWindow())
	}
	if cfg.Backoff.BaseSeconds != 5 {
		t.Fatalf("invalid env value should be ignored, got %d", cfg.Backoff.BaseSeconds)
	}
}
