package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/osome-iu/osome-bluesky-streamer/internal/checkpoint"
	cfgpkg "github.com/osome-iu/osome-bluesky-streamer/internal/config"
	pebblestore "github.com/osome-iu/osome-bluesky-streamer/internal/storage/pebble"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
}

// Runtime owns the data directory: the checkpoint database lives under
// <data>/checkpoints and the per-source event logs under <data>/streams.
type Runtime struct {
	db          *pebblestore.DB
	checkpoints *checkpoint.Store
	streamDir   string
	config      cfgpkg.Config
}

// Open initializes the data directory and underlying storage.
func Open(opts Options) (*Runtime, error) {
	if opts.DataDir == "" {
		return nil, errors.New("runtime: data dir required")
	}
	streamDir := filepath.Join(opts.DataDir, "streams")
	if err := os.MkdirAll(streamDir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: create stream dir: %w", err)
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(opts.DataDir, "checkpoints"),
		Fsync:         opts.Fsync,
		FsyncInterval: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: open checkpoint db: %w", err)
	}
	return &Runtime{
		db:          db,
		checkpoints: checkpoint.NewStore(db),
		streamDir:   streamDir,
		config:      opts.Config,
	}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Checkpoints returns the durable source → sequence store.
func (r *Runtime) Checkpoints() *checkpoint.Store { return r.checkpoints }

// Resolver builds a resume resolver over this runtime's storage with
// the given operator overrides (may be nil).
func (r *Runtime) Resolver(overrides map[string]uint64) *checkpoint.Resolver {
	return &checkpoint.Resolver{Store: r.checkpoints, StreamDir: r.streamDir, Overrides: overrides}
}

// StreamDir returns the directory holding per-source event logs.
func (r *Runtime) StreamDir() string { return r.streamDir }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
