// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/capture"
	"github.com/pagevault/pagevault/internal/config"
	"github.com/pagevault/pagevault/internal/detect"
	collyfetch "github.com/pagevault/pagevault/internal/fetch/colly"
	"github.com/pagevault/pagevault/internal/fetch/headless"
	"github.com/pagevault/pagevault/internal/ident"
	"github.com/pagevault/pagevault/internal/logging"
	"github.com/pagevault/pagevault/internal/ops"
	"github.com/pagevault/pagevault/internal/scheduler"
	"github.com/pagevault/pagevault/internal/sink"
	"github.com/pagevault/pagevault/internal/storage/postgres"
	"github.com/pagevault/pagevault/internal/storage/sqlite"

	systemclock "github.com/pagevault/pagevault/internal/clock/system"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	local    *sqlite.Store
	remote   *postgres.MirrorStore
	fetcher  capture.Fetcher
	headless *headless.Fetcher
	orch     *scheduler.Orchestrator
	ops      *ops.Server
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger { return a.logger }

// LocalStore returns the authoritative SQLite store.
func (a *App) LocalStore() *sqlite.Store { return a.local }

// RemoteStore returns the Postgres mirror, or nil when not configured.
func (a *App) RemoteStore() capture.RemoteStore {
	if a.remote == nil {
		return nil
	}
	return a.remote
}

// Fetcher returns the configured page fetcher.
func (a *App) Fetcher() capture.Fetcher { return a.fetcher }

// Orchestrator returns the capture pipeline orchestrator.
func (a *App) Orchestrator() *scheduler.Orchestrator { return a.orch }

// OpsServer returns the ops HTTP server, or nil when disabled.
func (a *App) OpsServer() *ops.Server { return a.ops }

// New builds the full service graph from cfg, failing fast when any
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	verbosity, err := logging.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(verbosity)
	if err != nil {
		return nil, err
	}
	logger.Info("initializing services",
		zap.Int("targets", len(cfg.Targets)),
		zap.String("local_path", cfg.Local.Path),
		zap.Bool("remote_configured", cfg.Remote.DSN != ""),
	)

	local, err := sqlite.New(cfg.Local.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := local.Init(ctx); err != nil {
		local.Close()
		return nil, fmt.Errorf("init local store: %w", err)
	}

	var remote *postgres.MirrorStore
	if cfg.Remote.DSN != "" {
		remote, err = postgres.NewMirrorStore(ctx, postgres.MirrorStoreConfig{
			DSN:             cfg.Remote.DSN,
			Table:           cfg.Remote.Table,
			MaxConns:        cfg.Remote.MaxConns,
			MinConns:        cfg.Remote.MinConns,
			MaxConnLifetime: cfg.RemoteConnLifetime(),
		})
		if err != nil {
			local.Close()
			return nil, fmt.Errorf("open remote store: %w", err)
		}
	} else {
		logger.Warn("no remote store configured; captures will not be mirrored")
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		local:  local,
		remote: remote,
	}

	plain := collyfetch.New(collyfetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	a.fetcher = plain
	if cfg.Fetch.RenderEnabled {
		hl, err := headless.New(headless.Config{
			MaxParallel:       cfg.Fetch.RenderMaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Fetch.RenderNavTimeout) * time.Second,
		}, plain, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.headless = hl
		a.fetcher = hl
	}

	clock := systemclock.New()
	gen, err := ident.New(clock, local, ident.Config{
		OverflowPolicy: ident.OverflowPolicy(cfg.Ident.OverflowPolicy),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init identifier generator: %w", err)
	}

	writer := sink.New(local, a.RemoteStore(), logger)
	detector := detect.New(local)

	slots, err := buildSlots(cfg.Schedule)
	if err != nil {
		a.Close()
		return nil, err
	}
	orch, err := scheduler.New(scheduler.Config{
		Targets: cfg.Targets,
		Slots:   slots,
		Tick:    time.Duration(cfg.Scheduler.TickSeconds) * time.Second,
	}, a.fetcher, gen, detector, writer, clock, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	a.orch = orch

	if cfg.Ops.Enabled {
		a.ops = ops.New(cfg.Ops.Addr, orch, local, logger)
	}

	logger.Info("services initialized")
	return a, nil
}

func buildSlots(sched config.ScheduleConfig) ([]scheduler.Slot, error) {
	var slots []scheduler.Slot
	for _, group := range []struct {
		category capture.Category
		times    []string
	}{
		{capture.CategoryPrimary, sched.Primary},
		{capture.CategoryBackup, sched.Backup},
	} {
		for i, s := range group.times {
			t, err := config.ParseTimeOfDay(s)
			if err != nil {
				return nil, fmt.Errorf("schedule.%s: %w", group.category, err)
			}
			slots = append(slots, scheduler.Slot{
				Category: group.category,
				RunSlot:  i + 1,
				Hour:     t.Hour,
				Minute:   t.Minute,
			})
		}
	}
	return slots, nil
}

// Close shuts down all services in the container.
func (a *App) Close() {
	a.logger.Info("shutting down services")
	if a.headless != nil {
		a.headless.Close()
	}
	if a.remote != nil {
		a.remote.Close()
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.logger.Warn("error closing local store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
