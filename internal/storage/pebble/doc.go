// Package pebblestore wraps a Pebble database with an explicit fsync
// policy. The streamer uses it as the durable backing for per-source
// checkpoints, where every committed batch must survive a crash.
package pebblestore
