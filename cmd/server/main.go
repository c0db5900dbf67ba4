package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ErlanBelekov/anime-sync/config"
	"github.com/ErlanBelekov/anime-sync/internal/app"
	"github.com/ErlanBelekov/anime-sync/internal/health"
	"github.com/ErlanBelekov/anime-sync/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/anime-sync/internal/log"
	"github.com/ErlanBelekov/anime-sync/internal/metrics"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
	httptransport "github.com/ErlanBelekov/anime-sync/internal/transport/http"
	"github.com/ErlanBelekov/anime-sync/internal/transport/http/handler"
	"github.com/ErlanBelekov/anime-sync/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)
	jobUsecase := usecase.NewJobUsecase(jobRepo, attemptRepo, cfg.DefaultMaxAttempts)
	jobHandler := handler.NewJobHandler(jobUsecase, logger)

	// Provider health is per process. A standalone API process makes no
	// provider calls, so its registry stays empty unless the worker is embedded.
	registry := provider.NewRegistry(nil)
	var circuits health.CircuitReporter
	workerDone := make(chan struct{})
	if cfg.EmbedWorker {
		bg, err := app.NewWorker(cfg, pool, logger)
		if err != nil {
			stop()
			log.Fatalf("worker: %v", err)
		}
		registry = bg.Registry
		circuits = bg.Registry
		go func() {
			defer close(workerDone)
			bg.Run(ctx)
		}()
	} else {
		close(workerDone)
	}
	providerHandler := handler.NewProviderHandler(registry)

	metrics.Register()
	checker := health.NewChecker(pool, circuits, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, jobHandler, providerHandler, checker, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	<-workerDone
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
