package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/okian/globalboard/internal/adapters/http/api"
	"github.com/okian/globalboard/internal/adapters/http/swagger"
	"github.com/okian/globalboard/internal/adapters/repository"
	"github.com/okian/globalboard/internal/adapters/speedrun"
	service "github.com/okian/globalboard/internal/app"
	"github.com/okian/globalboard/internal/config"
	"github.com/okian/globalboard/internal/domain/aggregate"
	"github.com/okian/globalboard/pkg/logger"
	"github.com/okian/globalboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Minute // an update pass can page through hundreds of runs
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// application holds the components shared by every command.
type application struct {
	cfg   *config.Config
	log   logger.Logger
	store repository.Store
	svc   *service.Service
}

// setup loads configuration, initializes logging and opens the store.
// Log output goes to stderr so command output on stdout stays parseable.
func setup(ctx context.Context, bypass bool) (*application, error) {
	if cfgFile != "" {
		if err := os.Setenv("GSB_CONFIG", cfgFile); err != nil {
			return nil, fmt.Errorf("set config path: %w", err)
		}
	}

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := logger.InitWithFormat(cfg.LogFormat, os.Stderr); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.StoreLatencyBucketsMS),
	)

	store, err := repository.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client := speedrun.New(
		speedrun.WithBaseURL(cfg.UpstreamBaseURL),
		speedrun.WithRateLimit(cfg.UpstreamRateLimit),
		speedrun.WithTimeout(cfg.UpstreamTimeout()),
		speedrun.WithPageSize(cfg.PageSize),
	)

	svc := service.New(store, client,
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithSubmitBackoff(cfg.SubmitBackoff()),
		service.WithMinUpdateInterval(cfg.MinUpdateInterval()),
		service.WithUpdateLock(cfg.UpdateLock()),
		service.WithBypassRestrictions(cfg.BypassUpdateRestrictions || bypass),
		service.WithMaxRunsPerPlayer(cfg.MaxRunsPerPlayer),
		service.WithAggregator(aggregate.New(aggregate.WithGameDecay(cfg.DiminishingDecay))),
	)

	return &application{cfg: cfg, log: log, store: store, svc: svc}, nil
}

func (a *application) close(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.svc.Stop(stopCtx); err != nil {
		a.log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Error(ctx, "store close failed", logger.Error(err))
	}
	_ = logger.Sync()
}

// handler builds the HTTP routes served by the serve command.
func (a *application) handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// API reference under /api-docs
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(a.svc, api.WithUpdateRateLimit(a.cfg.UpdateRateLimit))
	apiServer.Register(ctx, mux)
	return mux
}

func runServe(ctx context.Context, addr string) error {
	app, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	if addr == "" {
		addr = app.cfg.Addr
	}
	if err := app.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           app.handler(ctx),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		app.log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	app.log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	app.log.Info(ctx, "server stopped")
	return nil
}

func runUpdate(ctx context.Context, out io.Writer, idOrName string, bypass bool) error {
	app, err := setup(ctx, bypass)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	if err := app.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	result, err := app.svc.UpdatePlayer(ctx, "cli", idOrName)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
