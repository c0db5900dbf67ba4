// Package app assembles the background processing side of the service from
// config: provider clients, the health registry, job handlers, the worker and
// its periodic companions.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ErlanBelekov/anime-sync/config"
	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/email"
	"github.com/ErlanBelekov/anime-sync/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
	"github.com/ErlanBelekov/anime-sync/internal/scheduler"
	"github.com/ErlanBelekov/anime-sync/internal/usecase"
)

// Worker bundles everything that runs in the background.
type Worker struct {
	Registry *provider.Registry

	worker    *scheduler.Worker
	reaper    *scheduler.Reaper
	janitor   *scheduler.Janitor
	refresher *scheduler.Refresher
	logger    *slog.Logger
}

func NewWorker(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Worker, error) {
	jobRepo := postgres.NewJobRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)
	animeRepo := postgres.NewAnimeRepository(pool)

	registry := provider.NewRegistry(nil)
	selector := NewSelector(cfg, registry, logger)

	alerter := email.NewFailureAlerter(
		email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger),
		cfg.AlertEmail,
		logger,
	)

	worker := scheduler.NewWorker(jobRepo, attemptRepo, logger, cfg.PollInterval, cfg.WorkerCount)
	worker.Handle(domain.JobTypeEnrichment, usecase.NewEnrichmentHandler(animeRepo, selector, logger))
	worker.Handle(domain.JobTypeRelationsDiscovery, usecase.NewRelationsHandler(animeRepo, selector, logger))
	worker.OnFailure(alerter)

	reaper := scheduler.NewReaper(jobRepo, logger, cfg.ReaperInterval, cfg.StaleJobTimeout)
	reaper.OnFailure(alerter)

	janitor, err := scheduler.NewJanitor(jobRepo, logger, cfg.CleanupCron, cfg.JobRetentionDays)
	if err != nil {
		return nil, fmt.Errorf("janitor: %w", err)
	}

	refresher, err := scheduler.NewRefresher(jobRepo, animeRepo, logger,
		cfg.RefreshCron, cfg.RefreshAfter, cfg.RefreshBatch, cfg.DefaultMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("refresher: %w", err)
	}

	return &Worker{
		Registry:  registry,
		worker:    worker,
		reaper:    reaper,
		janitor:   janitor,
		refresher: refresher,
		logger:    logger,
	}, nil
}

// Run blocks until ctx is cancelled and every component has stopped. Claimed
// jobs are allowed to finish.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				w.logger.Error("component stopped", "component", name, "error", err)
			}
		}()
	}

	run("worker", func(ctx context.Context) error { w.worker.Start(ctx); return nil })
	run("reaper", func(ctx context.Context) error { w.reaper.Start(ctx); return nil })
	run("janitor", w.janitor.Start)
	run("refresher", w.refresher.Start)

	wg.Wait()
}

// NewSelector builds the provider clients from cfg and registers them in
// preference order: Jikan first, Kitsu as fallback.
func NewSelector(cfg *config.Config, registry *provider.Registry, logger *slog.Logger) *provider.Selector {
	jikan := provider.NewJikan(provider.NewClient(provider.ClientConfig{
		Name:          provider.JikanName,
		BaseURL:       cfg.JikanBaseURL,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.ProviderTimeout,
		RatePerSecond: cfg.JikanRPS,
		Burst:         burst(cfg.JikanRPS),
		Policy:        provider.JikanPolicy,
	}, registry.Health(provider.JikanName), logger))

	kitsu := provider.NewKitsu(provider.NewClient(provider.ClientConfig{
		Name:          provider.KitsuName,
		BaseURL:       cfg.KitsuBaseURL,
		Accept:        provider.KitsuAccept,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.ProviderTimeout,
		RatePerSecond: cfg.KitsuRPS,
		Burst:         burst(cfg.KitsuRPS),
		Policy:        provider.KitsuPolicy,
	}, registry.Health(provider.KitsuName), logger))

	selector := provider.NewSelector(registry)
	selector.Register(jikan, 1)
	selector.Register(kitsu, 2)
	return selector
}

func burst(rps float64) int {
	return max(1, int(math.Ceil(rps)))
}
