package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/today-feed-cache/internal/clock"
	"github.com/tbourn/today-feed-cache/internal/config"
	"github.com/tbourn/today-feed-cache/internal/domain"
	httpapi "github.com/tbourn/today-feed-cache/internal/http"
	"github.com/tbourn/today-feed-cache/internal/http/handlers"
	"github.com/tbourn/today-feed-cache/internal/observability"
	"github.com/tbourn/today-feed-cache/internal/remote"
	"github.com/tbourn/today-feed-cache/internal/repo"
	"github.com/tbourn/today-feed-cache/internal/services"
	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, timers and connectivity probe",
	RunE:  runServe,
}

// collaborator is the remote content/sync API as the cache sees it.
type collaborator interface {
	services.Fetcher
	services.Syncer
	remote.Pinger
}

// newCollaborator picks the HTTP client, or the simulated API when no base
// URL is configured.
func newCollaborator(cfg config.Config, clk clock.Clock) (collaborator, error) {
	if cfg.Remote.BaseURL == "" {
		logger := sysutil.Component("main")
		logger.Warn().Msg("CONTENT_API_URL not set; using the simulated content API")
		return remote.NewSimulated(clk, cfg.Cache.Location), nil
	}
	return remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout)
}

func openStore(cfg config.Config) services.StoreOpener {
	return func(ctx context.Context) (*gorm.DB, error) {
		db, err := repo.OpenSQLite(cfg.DBPath, repo.Options{Tracing: cfg.OTEL.Enabled})
		if err != nil {
			return nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			if sqlDB, derr := db.DB(); derr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		return db, nil
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := sysutil.Component("main")

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{
		Version:     version,
		Environment: cfg.Rollout.Environment,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	clk := clock.Real{}
	api, err := newCollaborator(cfg, clk)
	if err != nil {
		return err
	}

	lc := &services.Lifecycle{
		Config:    cfg,
		Clock:     clk,
		OpenStore: openStore(cfg),
		Fetcher:   api,
		Syncer:    api,
	}
	if err := lc.Initialize(ctx); err != nil {
		return err
	}
	defer lc.Dispose(context.Background())

	gate := &services.MigrationManager{DB: lc.DB, Config: cfg.Rollout}
	if err := gate.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = gate.Dispose(context.Background()) }()

	err = lc.ScheduleNextRefresh(ctx, func(ctx context.Context) {
		if _, err := lc.Warming.Warm(ctx, domain.TriggerRefresh); err != nil {
			logger.Warn().Err(err).Msg("daily refresh")
		}
	})
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, handlers.Deps{
		Content:        lc.Content,
		Sync:           lc.Sync,
		Rollout:        gate,
		Lifecycle:      lc,
		Maintenance:    lc.Maintenance,
		Warming:        lc.Warming,
		Health:         lc.Health,
		DB:             lc.DB,
		IdempotencyTTL: cfg.IdempotencyTTL,
		IsInternal:     cfg.Rollout.IsInternalUser,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		probe := &remote.Prober{Target: api, Interval: cfg.Remote.Probe, Timeout: cfg.Remote.Timeout}
		err := lc.WatchConnectivity(gctx, probe.Start(gctx))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
