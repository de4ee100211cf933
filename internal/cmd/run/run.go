// Package runcmd is the composition root for the `streamer run`
// command: it builds the logger, loads the source list, opens the
// runtime, and keeps the scheduler running until a stop signal.
package runcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/osome-iu/osome-bluesky-streamer/internal/backoff"
	cfgpkg "github.com/osome-iu/osome-bluesky-streamer/internal/config"
	"github.com/osome-iu/osome-bluesky-streamer/internal/consumer"
	"github.com/osome-iu/osome-bluesky-streamer/internal/runtime"
	"github.com/osome-iu/osome-bluesky-streamer/internal/scheduler"
	"github.com/osome-iu/osome-bluesky-streamer/internal/shutdown"
	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
	pebblestore "github.com/osome-iu/osome-bluesky-streamer/internal/storage/pebble"
	"github.com/osome-iu/osome-bluesky-streamer/internal/transport"
	logpkg "github.com/osome-iu/osome-bluesky-streamer/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type Options struct {
	DataDir   string
	Sources   string // CSV endpoint list, required
	Overrides string // optional JSON resume-override file
	LogFile   string
	Fsync     pebblestore.FsyncMode
	Config    cfgpkg.Config
}

// Run ingests the configured sources and blocks until ctx is cancelled
// or a stop signal arrives. A non-nil return means the process should
// exit non-zero.
func Run(ctx context.Context, opts Options) error {
	// Build process-wide logger from env/ApplyConfig; defaults: level=info, format=text
	lcfg := &logpkg.Config{
		Level:  getenvDefault("STREAMER_LOG_LEVEL", "info"),
		Format: getenvDefault("STREAMER_LOG_FORMAT", "text"),
		File:   opts.LogFile,
	}
	logger, err := logpkg.ApplyConfig(lcfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(lcfg.Level); e == nil {
			lvl = l
		}
		logger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if opts.Sources == "" {
		return fmt.Errorf("a source endpoint list is required")
	}
	sources, err := source.LoadCSV(opts.Sources, func(row []string, err error) {
		logger.Warn("skipping endpoint row", logpkg.Any("row", row), logpkg.Err(err))
	})
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	var overrides map[string]uint64
	if opts.Overrides != "" {
		overrides, err = source.LoadOverrides(opts.Overrides)
		if err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}

	rt, err := runtime.Open(runtime.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, Config: cfg})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting streamer",
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Int("sources", len(sources)),
		logpkg.Int("overrides", len(overrides)),
		logpkg.Int("concurrency", cfg.MaxConcurrentStreams),
		logpkg.Str("level", lcfg.Level),
		logpkg.Str("format", lcfg.Format),
	)

	ctrl := backoff.New(cfg.Backoff.BaseDelay(), cfg.Backoff.MaxDelay(), cfg.Backoff.RateLimitWait())
	subDialer := &transport.SubscriptionDialer{}
	exportDialer := &transport.ExportDialer{}

	factory := func(src source.Source) scheduler.Consumer {
		var d transport.Dialer = subDialer
		if src.Kind == source.KindExport {
			d = exportDialer
		}
		return consumer.New(src, d, rt.Checkpoints(), ctrl, consumer.Options{
			StreamDir:          rt.StreamDir(),
			CheckpointEvery:    cfg.CheckpointEvery,
			CheckpointInterval: cfg.CheckpointInterval(),
		}, logger)
	}

	sched, err := scheduler.New(sources, factory, rt.Resolver(overrides).Resolve, scheduler.Options{
		Concurrency: cfg.MaxConcurrentStreams,
		RoundLength: cfg.RoundDuration(),
		Quiescence:  cfg.QuiescenceWindow(),
	}, logger)
	if err != nil {
		return err
	}

	coord := shutdown.New(cfg.ShutdownGrace(), logger)
	coord.OnUnclean(sched.Active)
	return coord.Run(ctx, sched.Run)
}
