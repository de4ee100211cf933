// Package checkpoint persists the last durably-recorded sequence number
// per source. The store is a cache: when a source's event log exists, its
// tail wins. Commits are idempotent and never move a checkpoint backward,
// so concurrent-looking retries and replays are harmless.
package checkpoint
