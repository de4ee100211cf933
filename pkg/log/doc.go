// Package log provides the streamer's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that routes records through a
// formatter/outputs pipeline, so output stays consistent whether a record
// originates from this facade or from slog-aware libraries.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("scheduler"))
//	l.Info("round started", log.Int("sources", 8))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level,
// format, optional log file). The collection scripts historically wrote
// their output to per-process log files; FileOutput preserves that.
//
// # Interop
//
// RedirectStdLog points the standard library's global logger (used by
// Pebble among others) at a Logger so nothing prints unformatted.
package log
