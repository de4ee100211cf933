// Package config holds the streamer's tunables: concurrency bound, round
// and quiescence timing, checkpoint cadence, and backoff policy. Values
// come from built-in defaults, an optional JSON file, and STREAMER_*
// environment variables, in that order.
package config
