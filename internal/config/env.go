package config

import (
	"os"
	"strconv"
)

// FromEnv overlays STREAMER_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt("STREAMER_MAX_CONCURRENT_STREAMS", &cfg.MaxConcurrentStreams)
	setInt("STREAMER_ROUND_SECONDS", &cfg.RoundSeconds)
	setInt("STREAMER_QUIESCENCE_SECONDS", &cfg.QuiescenceSeconds)
	setInt("STREAMER_CHECKPOINT_EVERY", &cfg.CheckpointEvery)
	setInt("STREAMER_CHECKPOINT_INTERVAL_SECONDS", &cfg.CheckpointIntervalSeconds)
	setInt("STREAMER_SHUTDOWN_GRACE_SECONDS", &cfg.ShutdownGraceSeconds)
	setInt("STREAMER_BACKOFF_BASE_SECONDS", &cfg.Backoff.BaseSeconds)
	setInt("STREAMER_BACKOFF_MAX_SECONDS", &cfg.Backoff.MaxSeconds)
	setInt("STREAMER_RATE_LIMIT_WAIT_SECONDS", &cfg.Backoff.RateLimitWaitSeconds)
}
