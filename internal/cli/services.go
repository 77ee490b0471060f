package cli

import (
	"fmt"
	"log/slog"
	"os"

	"locuscore/internal/batch"
	"locuscore/internal/cache"
	"locuscore/internal/clock"
	"locuscore/internal/config"
	"locuscore/internal/dup"
	"locuscore/internal/locus"
	"locuscore/internal/migrate"
	"locuscore/internal/schema"
	"locuscore/internal/temporal"
)

// Services is the composition root: one client, one instance of each
// component, built once per invocation and shared by the commands.
type Services struct {
	Config config.Config
	Log    *slog.Logger
	Client locus.Client

	Cache     *cache.Cache
	Detector  *dup.Detector
	Tracker   *batch.Tracker
	Scheduler *temporal.Scheduler
	Manager   *migrate.Manager
	Migrations *migrate.Registry
	Schemas   *schema.Registry

	closer interface{ Close() error }
}

// buildServices loads configuration, applies flag overrides, and wires the
// full component graph over the selected backend.
func buildServices(opts *RootOptions) (*Services, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if opts.Backend != "" {
		cfg.StoreBackend = opts.Backend
	}
	if opts.DBPath != "" {
		cfg.SQLitePath = opts.DBPath
	}

	log := newLogger(cfg.LogLevel, opts.Verbose)
	clk := clock.System()

	var (
		client locus.Client
		closer interface{ Close() error }
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		client = locus.NewMemoryClient(locus.WithClock(clk))
	case config.BackendSQLite:
		sqlite, err := locus.OpenSQLite(cfg.SQLitePath, clk)
		if err != nil {
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		client = sqlite
		closer = sqlite
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	client = locus.Instrument(client)

	schemas, err := schema.NewRegistry()
	if err != nil {
		return nil, err
	}

	manager := migrate.NewManager(client, clk, log)
	return &Services{
		Config:     cfg,
		Log:        log,
		Client:     client,
		Cache:      cache.New(client, clk, log),
		Detector:   dup.NewDetector(client, clk, log),
		Tracker:    batch.NewTracker(client, clk, log),
		Scheduler:  temporal.NewScheduler(client, clk, log),
		Manager:    manager,
		Migrations: migrate.NewRegistry(manager),
		Schemas:    schemas,
		closer:     closer,
	}, nil
}

// BatchDeps bundles the creator dependencies for the batch commands.
func (s *Services) BatchDeps() batch.Deps {
	return batch.Deps{
		Client:  s.Client,
		Clock:   clock.System(),
		Log:     s.Log,
		Tracker: s.Tracker,
		Schemas: s.Schemas,
	}
}

// Close releases the backend, if it holds resources.
func (s *Services) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func newLogger(level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
