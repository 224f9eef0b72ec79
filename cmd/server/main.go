package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/odin-market/progression/internal/api"
	"github.com/odin-market/progression/internal/config"
	"github.com/odin-market/progression/internal/jobs"
	"github.com/odin-market/progression/internal/logging"
	"github.com/odin-market/progression/internal/metrics"
	"github.com/odin-market/progression/internal/progression"
	"github.com/odin-market/progression/internal/simulate"
	"github.com/odin-market/progression/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults only when empty)")
	port := flag.Int("port", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Feed simulated marketplace traffic into the engine")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log, err := logging.Setup(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	if err := run(cfg, log, *mockMode); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger, mockMode bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()
	log.WithField("driver", cfg.Storage.Driver).Info("profile store ready")

	catalog := progression.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = progression.LoadCatalog(cfg.CatalogPath); err != nil {
			return err
		}
		log.WithField("path", cfg.CatalogPath).Info("catalog loaded")
	}

	reg := metrics.New()
	engine := newEngine(cfg, backend, catalog, log, reg)

	leaderboard := progression.NewLeaderboard(backend, catalog,
		cfg.Leaderboard.DefaultPageSize, cfg.Leaderboard.MaxPageSize)

	srv := api.NewServer(engine, leaderboard, backend, log)
	srv.SetMetrics(reg)

	sched, err := jobs.New(log)
	if err != nil {
		return err
	}
	if cfg.Leaderboard.RefreshInterval > 0 {
		if err := sched.ScheduleRankRefresh(leaderboard, cfg.Leaderboard.RefreshInterval, reg); err != nil {
			return err
		}
	}
	if cfg.RateLimit.Enabled {
		limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, log)
		srv.SetRateLimiter(limiter)
		if err := sched.ScheduleSweep("limiter-sweep", limiter, cfg.RateLimit.Window); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.WithError(err).Warn("scheduler shutdown")
		}
	}()

	if mockMode {
		log.Info("starting in mock mode")
		gen := simulate.NewGenerator(engine, 12, uint64(time.Now().UnixNano()), log)
		go func() {
			if err := gen.Run(ctx, 2*time.Second, 0); err != nil {
				log.WithError(err).Warn("simulator stopped")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err, ok := <-errCh; ok && err != nil {
		return err
	}
	return nil
}

// newEngine builds the engine the server runs. Unlocks and level-ups are
// logged by the engine itself, so no hooks are registered here.
func newEngine(cfg *config.Config, backend progression.ProfileStore, catalog *progression.Catalog, log logrus.FieldLogger, rec progression.Recorder) *progression.Engine {
	return progression.NewEngine(backend, catalog,
		progression.WithLogger(log),
		progression.WithRecorder(rec),
		progression.WithRetryPolicy(progression.RetryPolicy{
			MaxAttempts: cfg.Engine.MaxAttempts,
			BaseBackoff: cfg.Engine.BaseBackoff,
			MaxBackoff:  cfg.Engine.MaxBackoff,
		}),
	)
}
