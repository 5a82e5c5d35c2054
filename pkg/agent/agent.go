package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aundhe1m/backy-agent/pkg/api"
	"github.com/aundhe1m/backy-agent/pkg/command"
	"github.com/aundhe1m/backy-agent/pkg/config"
	"github.com/aundhe1m/backy-agent/pkg/drives"
	"github.com/aundhe1m/backy-agent/pkg/events"
	"github.com/aundhe1m/backy-agent/pkg/fsreader"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/mdstat"
	"github.com/aundhe1m/backy-agent/pkg/metadata"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
	"github.com/aundhe1m/backy-agent/pkg/mounts"
	"github.com/aundhe1m/backy-agent/pkg/operations"
	"github.com/aundhe1m/backy-agent/pkg/pool"
)

// Agent owns the component graph and the lifetimes of the background
// workers: drive refresh, operation sweeper, event broker and the HTTP
// server. One cancellation handle stops everything.
type Agent struct {
	cfg        *config.Config
	broker     *events.Broker
	drives     *drives.Cache
	registry   *operations.Registry
	meta       *metadata.Store
	reconciler *pool.Reconciler
	server     *api.Server
	logger     zerolog.Logger
}

// New builds the component graph from configuration.
func New(cfg *config.Config) *Agent {
	broker := events.NewBroker()
	runner := command.NewExecRunner(cfg.ElevationCommand)
	fs := fsreader.New(cfg.FileCacheTTL())
	meta := metadata.NewStore(cfg.MetadataPath)
	driveCache := drives.NewCache(runner, cfg.ExcludedDrives, cfg.DriveRefreshInterval.Std(), broker)
	md := mdstat.NewReader(fs, runner, meta)
	mountReader := mounts.NewReader(fs)
	registry := operations.NewRegistry(cfg.OperationRetentionWindow.Std(), cfg.OperationCleanupInterval.Std())
	inventory := pool.NewInventory(md, meta, driveCache, mountReader)
	operator := pool.NewOperator(runner, driveCache, md, mountReader, meta, registry, inventory, broker)
	reconciler := pool.NewReconciler(meta, driveCache, md, mountReader, runner, broker, cfg.AutoMountOnRecover)
	server := api.NewServer(cfg, driveCache, operator, inventory, reconciler, registry)

	return &Agent{
		cfg:        cfg,
		broker:     broker,
		drives:     driveCache,
		registry:   registry,
		meta:       meta,
		reconciler: reconciler,
		server:     server,
		logger:     log.WithComponent("agent"),
	}
}

// Run starts the agent and blocks until ctx is cancelled or a worker
// fails. Startup order: metadata load, initial drive snapshot, metadata
// reconciliation, then the long-lived workers.
func (a *Agent) Run(ctx context.Context) error {
	metrics.Register()

	stopSink := events.StartLogSink(a.broker)
	defer func() {
		a.broker.Close()
		stopSink()
	}()

	if _, err := a.meta.Load(); err != nil {
		return fmt.Errorf("failed to load pool metadata: %w", err)
	}

	if _, err := a.drives.Refresh(ctx); err != nil {
		// A host without lsblk output still serves metadata reads.
		a.logger.Warn().Err(err).Msg("Initial drive refresh failed")
	}

	// Health probes run when the endpoints are hit, so the report always
	// reflects current state. A stale drive snapshot only degrades.
	metrics.RegisterCheck("metadata", true, func() error {
		_, err := a.meta.Load()
		return err
	})
	metrics.RegisterCheck("drives", false, func() error {
		if a.drives.LastRefresh().IsZero() {
			return errors.New("no drive snapshot yet")
		}
		return nil
	})

	fixed, err := a.reconciler.Reconcile(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Startup reconciliation failed")
	} else if fixed > 0 {
		a.logger.Info().Int("fixed", fixed).Msg("Startup reconciliation corrected metadata entries")
	}

	a.logger.Info().Int("port", a.cfg.ListenPort).Msg("Agent started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.drives.Run(ctx) })
	g.Go(func() error { return a.registry.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })

	err = g.Wait()
	a.logger.Info().Msg("Agent stopped")
	return err
}
