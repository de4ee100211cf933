// Package eventlog stores one append-only, line-delimited JSON artifact
// per source. Each line is a self-describing record carrying the source
// identity, the source-assigned sequence number, the collection time,
// and the opaque payload.
//
// The log tail is the source of truth for resume decisions: after a
// crash the last complete line's sequence number is recovered and any
// partial trailing write is discarded, so a stale checkpoint can never
// cause skipped records.
package eventlog
