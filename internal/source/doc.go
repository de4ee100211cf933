// Package source models the remote endpoints the streamer ingests from.
//
// A source's identity is its normalized address: scheme stripped, trailing
// slash removed, host lowercased. Two differently written addresses for
// the same endpoint normalize to the same identity, which keys that
// source's event log and checkpoint. Discovery inputs (the endpoint CSV
// refreshed by an external process) are validated here; invalid addresses
// never reach the scheduler.
package source
