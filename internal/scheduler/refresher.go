package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/metrics"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

// Refresher periodically enqueues low-priority enrichment for anime whose
// data is older than refreshAfter.
type Refresher struct {
	jobs         repository.JobRepository
	anime        repository.AnimeRepository
	logger       *slog.Logger
	spec         string
	refreshAfter time.Duration
	batch        int
	maxAttempts  int
}

func NewRefresher(
	jobs repository.JobRepository,
	anime repository.AnimeRepository,
	logger *slog.Logger,
	spec string,
	refreshAfter time.Duration,
	batch, maxAttempts int,
) (*Refresher, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	return &Refresher{
		jobs:         jobs,
		anime:        anime,
		logger:       logger.With("component", "refresher"),
		spec:         spec,
		refreshAfter: refreshAfter,
		batch:        batch,
		maxAttempts:  maxAttempts,
	}, nil
}

func (r *Refresher) Start(ctx context.Context) error {
	return runCron(ctx, r.spec, r.logger, func(ctx context.Context) { r.Refresh(ctx) })
}

// Refresh runs one pass and returns the number of jobs enqueued. An entity
// whose last refresh failed for good within refreshAfter is left alone until
// that window passes, so a permanently broken entry alerts once per window.
func (r *Refresher) Refresh(ctx context.Context) int {
	cutoff := time.Now().Add(-r.refreshAfter)
	ids, err := r.anime.ListStale(ctx, cutoff, r.batch)
	if err != nil {
		r.logger.Error("list stale anime", "error", err)
		return 0
	}

	enqueued := 0
	for _, id := range ids {
		active, err := r.jobs.HasActiveJob(ctx, domain.JobTypeEnrichment, id)
		if err != nil {
			r.logger.Error("check active job", "anime_id", id, "error", err)
			continue
		}
		if active {
			continue
		}
		failed, err := r.jobs.HasRecentFailure(ctx, domain.JobTypeEnrichment, id, cutoff)
		if err != nil {
			r.logger.Error("check recent failure", "anime_id", id, "error", err)
			continue
		}
		if failed {
			continue
		}

		if _, err := r.jobs.Enqueue(ctx, repository.EnqueueInput{
			Payload:     domain.EnrichmentPayload{AnimeID: id},
			Priority:    domain.PriorityLow,
			MaxAttempts: r.maxAttempts,
		}); err != nil {
			r.logger.Error("enqueue refresh", "anime_id", id, "error", err)
			continue
		}
		metrics.JobsEnqueuedTotal.WithLabelValues(string(domain.JobTypeEnrichment), "refresher").Inc()
		enqueued++
	}

	if enqueued > 0 {
		r.logger.Info("enqueued refresh jobs", "count", enqueued, "stale", len(ids))
	}
	return enqueued
}
