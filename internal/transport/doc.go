// Package transport opens streams to remote sources and classifies their
// failures exactly once, at the wire boundary. Consumers branch on the
// typed class (transient, rate-limited, permanent, decode) and never
// inspect error text.
//
// Two stream shapes exist: a live websocket subscription resumed via a
// cursor query parameter (firehose and labeler label streams), and a
// paginated HTTP export feed polled with a cursor (PLC-style export).
package transport
