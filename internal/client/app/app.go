// Package app wires the client components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/coachsync/internal/client/api"
	"github.com/iudanet/coachsync/internal/client/auth"
	"github.com/iudanet/coachsync/internal/client/coaching"
	"github.com/iudanet/coachsync/internal/client/monitor"
	"github.com/iudanet/coachsync/internal/client/queue"
	"github.com/iudanet/coachsync/internal/client/state"
	"github.com/iudanet/coachsync/internal/client/storage/boltdb"
	syncer "github.com/iudanet/coachsync/internal/client/sync"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/config"
	"github.com/iudanet/coachsync/internal/metrics"
)

// App holds the assembled client.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *boltdb.Storage
	API       *api.Client
	Auth      *auth.Service
	State     *state.SyncState
	Processor *syncer.Processor
	Queue     *queue.Manager
	Monitor   *monitor.Monitor
	Coaching  *coaching.Service

	metrics *metrics.Provider // nil если метрики выключены
}

// Open validates cfg, opens the local database and wires every component.
// The returned App must be closed.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	codes, err := cfg.RetryableStatuses()
	if err != nil {
		return nil, err
	}

	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		API:    api.NewClient(cfg.ServerURL, cfg.HTTPTimeout),
		State:  state.New(false),
	}

	var syncMetrics metrics.SyncMetrics = metrics.NoOp{}
	if cfg.MetricsEnabled {
		a.metrics, err = metrics.NewProvider()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		syncMetrics, err = metrics.NewSyncMetrics(a.metrics.MeterProvider())
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	clk := clock.New()
	a.Auth = auth.NewService(a.API, auth.NewTokenStore(store), clk, logger.With("component", "auth"))

	a.Processor = syncer.NewProcessor(store, a.API, a.Auth, a.State, clk, syncer.Config{
		Policy:     syncer.NewRetryPolicy(codes),
		Backoff:    syncer.Backoff{Base: cfg.SyncBaseDelay, Max: cfg.SyncMaxDelay},
		MaxRetries: cfg.SyncMaxRetries,
	}, syncMetrics, logger.With("component", "processor"))

	a.Queue = queue.NewManager(store, a.State, clk, a.Processor, queue.Config{
		Debounce:   cfg.SyncDebounce,
		MaxRetries: cfg.SyncMaxRetries,
	}, syncMetrics, logger.With("component", "queue"))

	a.Monitor = monitor.NewMonitor(a.State, clk, a.Processor, a.Processor, a.API, monitor.Config{
		Heartbeat:     cfg.SyncHeartbeat,
		ProbeInterval: cfg.SyncProbeInterval,
	}, logger.With("component", "monitor"))

	a.Coaching = coaching.NewService(a.Queue, store, clk, logger.With("component", "coaching"))

	// счетчики и время последней синхронизации переживают перезапуск
	a.Queue.RefreshCounts(ctx)
	last, err := store.GetLastSyncAt(ctx)
	if err != nil {
		logger.Warn("failed to read last sync time", "error", err)
	} else if !last.IsZero() {
		a.State.SetLastSyncAt(last)
	}

	return a, nil
}

// Unlock decrypts the stored session. An empty password falls back to the
// configured master password.
func (a *App) Unlock(ctx context.Context, password string) error {
	if password == "" {
		password = a.Config.MasterPassword
	}
	if password == "" {
		return errors.New("master password is required to unlock the session")
	}
	return a.Auth.Unlock(ctx, password)
}

// SyncNow probes the server and runs one processor pass synchronously.
func (a *App) SyncNow(ctx context.Context) (syncer.PassResult, error) {
	a.Monitor.Probe(ctx)
	return a.Processor.ForceFlushNow(ctx)
}

// Run runs the processor worker loop, the monitor and, if enabled, the metrics
// server until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Processor.Run(gctx) })
	g.Go(func() error { return a.Monitor.Run(gctx) })
	if a.metrics != nil {
		server := metrics.NewServer(a.Config.MetricsAddr, a.metrics, a.Logger.With("component", "metrics"))
		g.Go(func() error { return server.Run(gctx) })
	}

	// очередь могла накопиться до запуска
	a.Processor.TriggerSync()

	return g.Wait()
}

// Close stops timers and releases the database.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown metrics: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}
