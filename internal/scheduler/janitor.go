package scheduler

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/anime-sync/internal/metrics"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

// Janitor deletes finished jobs past the retention window on a cron schedule.
type Janitor struct {
	repo          repository.JobRepository
	logger        *slog.Logger
	spec          string
	retentionDays int
}

func NewJanitor(repo repository.JobRepository, logger *slog.Logger, spec string, retentionDays int) (*Janitor, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	return &Janitor{
		repo:          repo,
		logger:        logger.With("component", "janitor"),
		spec:          spec,
		retentionDays: retentionDays,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	return runCron(ctx, j.spec, j.logger, j.Clean)
}

// Clean runs one retention pass.
func (j *Janitor) Clean(ctx context.Context) {
	n, err := j.repo.DeleteOldCompleted(ctx, j.retentionDays)
	if err != nil {
		j.logger.Error("delete old jobs", "error", err)
		return
	}
	metrics.JanitorDeletedTotal.Add(float64(n))
	j.logger.Info("deleted old jobs", "count", n, "retention_days", j.retentionDays)
}
