// Package backoff computes per-source retry delays. Repeated failures
// grow the delay exponentially up to a cap, with uniform jitter so many
// sources backing off at once do not retry in lockstep. Rate-limit
// responses bypass the computed delay and honor the server's wait hint.
// State is transient: a fresh process starts every source at attempt 0.
package backoff
