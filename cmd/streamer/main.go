package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	runcmd "github.com/osome-iu/osome-bluesky-streamer/internal/cmd/run"
	cfgpkg "github.com/osome-iu/osome-bluesky-streamer/internal/config"
	"github.com/osome-iu/osome-bluesky-streamer/internal/source"
	pebblestore "github.com/osome-iu/osome-bluesky-streamer/internal/storage/pebble"
	logpkg "github.com/osome-iu/osome-bluesky-streamer/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI output; the run command rebuilds its
	// own from env/flags
	level := os.Getenv("STREAMER_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "streamer",
		Short: "Bluesky stream collector",
		Long:  "streamer ingests firehose, labeler, and export streams into per-source event logs with durable resume checkpoints.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			sourcesPath, _ := cmd.Flags().GetString("sources")
			overridesPath, _ := cmd.Flags().GetString("overrides")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			logFile, _ := cmd.Flags().GetString("log-file")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if concurrency > 0 {
				cfg.MaxConcurrentStreams = concurrency
			}
			if logLevel != "" {
				_ = os.Setenv("STREAMER_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("STREAMER_LOG_FORMAT", logFormat)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := runcmd.Run(ctx, runcmd.Options{
				DataDir:   dataDir,
				Sources:   sourcesPath,
				Overrides: overridesPath,
				LogFile:   logFile,
				Fsync:     mode,
				Config:    cfg,
			}); err != nil {
				return fmt.Errorf("streamer error: %w", err)
			}
			return nil
		},
	}
	runCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	runCmd.Flags().String("sources", "", "CSV endpoint list with a service_endpoint column (required)")
	runCmd.Flags().String("overrides", "", "JSON file mapping source ids to resume sequences")
	runCmd.Flags().String("config", "", "JSON config file (defaults are built in)")
	runCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	runCmd.Flags().String("log-level", os.Getenv("STREAMER_LOG_LEVEL"), "Log level: debug|info|warn|error")
	runCmd.Flags().String("log-format", os.Getenv("STREAMER_LOG_FORMAT"), "Log format: text|json (default text)")
	runCmd.Flags().String("log-file", "", "Also append logs to this file")
	runCmd.Flags().Int("concurrency", 0, "Max concurrent streams (overrides config)")
	_ = runCmd.MarkFlagRequired("sources")
	rootCmd.AddCommand(runCmd)

	sourcesCmd := &cobra.Command{Use: "sources", Short: "Source list operations"}
	sourcesCheckCmd := &cobra.Command{
		Use:   "check",
		Short: "Parse and normalize an endpoint CSV, printing what run would ingest",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("sources")
			srcs, err := source.LoadCSV(path, func(row []string, err error) {
				logger.Warn("skipping endpoint row", logpkg.Any("row", row), logpkg.Err(err))
			})
			if err != nil {
				return err
			}
			for _, s := range srcs {
				fmt.Printf("%s\t%s\t%s\n", s.Kind, s.ID, s.Addr)
			}
			fmt.Printf("%d sources\n", len(srcs))
			return nil
		},
	}
	sourcesCheckCmd.Flags().String("sources", "", "CSV endpoint list to check")
	_ = sourcesCheckCmd.MarkFlagRequired("sources")
	sourcesCmd.AddCommand(sourcesCheckCmd)
	rootCmd.AddCommand(sourcesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
