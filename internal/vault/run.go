// Package vault implements the work genesisvault does once its command
// line has been parsed: load configuration, open the state store and
// record the launch.
package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/genesisvault/genesisvault/internal/config"
	"github.com/genesisvault/genesisvault/internal/logging"
	"github.com/genesisvault/genesisvault/internal/store"
)

// Options configures a run. The zero value logs to os.Stderr and uses the
// default config search paths.
type Options struct {
	Verbose bool

	// Log destination
	Stderr io.Writer

	// Where configuration files are looked up; nil means config.DefaultOptions
	Config *config.Options

	// Clock used for the genesis and launch timestamps
	Now func() time.Time
}

// Run bootstraps the vault with default options
func Run(ctx context.Context, verbose bool) error {
	return RunWithOptions(ctx, Options{Verbose: verbose})
}

// RunWithOptions loads configuration, opens the store, records the launch
// and closes the store again. Failures are returned as *Error.
func RunWithOptions(ctx context.Context, opts Options) (err error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfgOpts := config.DefaultOptions()
	if opts.Config != nil {
		cfgOpts = *opts.Config
	}

	logger := logging.New(opts.Stderr, opts.Verbose)

	cfg, err := config.Load(cfgOpts)
	if err != nil {
		return &Error{Op: OpConfig, Err: err}
	}
	logger.Debug("configuration loaded",
		"data_dir", cfg.DataDir,
		"in_memory", cfg.InMemory,
		"sync_writes", cfg.SyncWrites,
		"config_file", cfg.ConfigFile,
		"env_file", cfg.EnvFile)

	storage, err := Open(cfg)
	if err != nil {
		return &Error{Op: OpOpen, Err: err}
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil && err == nil {
			err = &Error{Op: OpClose, Err: cerr}
		}
	}()

	state, err := Bootstrap(ctx, storage, opts.Now())
	if err != nil {
		return &Error{Op: OpBootstrap, Err: err}
	}

	committed, err := Status(ctx, storage)
	if err != nil {
		return &Error{Op: OpBootstrap, Err: err}
	}
	if committed.Genesis.ID != state.Genesis.ID || committed.Launches.Count != state.Launches.Count {
		return &Error{Op: OpBootstrap, Err: ErrLaunchNotRecorded}
	}

	if state.Created {
		logger.Info("vault initialized", "id", state.Genesis.ID)
	}
	logger.Info("vault ready",
		"id", state.Genesis.ID,
		"launches", state.Launches.Count,
		"data_dir", storage.Path())

	if opts.Verbose {
		records, err := CountRecords(ctx, storage)
		if err != nil {
			return &Error{Op: OpBootstrap, Err: err}
		}
		stats := storage.Stats()
		logger.Debug("store status",
			"size", humanize.Bytes(uint64(stats.TotalSize)),
			"records", records,
			"reads", stats.ReadCount,
			"writes", stats.WriteCount,
			"created", humanize.Time(state.Genesis.CreatedAt),
			"schema_version", state.Genesis.SchemaVersion)
	}

	return nil
}

// Open opens the badger store described by cfg, creating the data
// directory when needed.
func Open(cfg config.Config) (*store.BadgerStorage, error) {
	opts := store.DefaultBadgerOptions(cfg.DataDir)
	opts.InMemory = cfg.InMemory
	opts.SyncWrites = cfg.SyncWrites

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return store.NewBadgerStorage(opts)
}
