package usecase

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/metrics"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

// MaxPriority bounds the priority values accepted from callers.
const MaxPriority = 100

type JobUsecase struct {
	repo               repository.JobRepository
	attempts           repository.AttemptRepository
	defaultMaxAttempts int
}

func NewJobUsecase(repo repository.JobRepository, attempts repository.AttemptRepository, defaultMaxAttempts int) *JobUsecase {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = domain.DefaultMaxAttempts
	}
	return &JobUsecase{repo: repo, attempts: attempts, defaultMaxAttempts: defaultMaxAttempts}
}

type EnqueueJobInput struct {
	Type        domain.JobType
	AnimeID     int64
	Priority    int // 0 = domain.PriorityNormal
	MaxAttempts int // 0 = configured default
	Source      string
}

func (u *JobUsecase) Enqueue(ctx context.Context, input EnqueueJobInput) (*domain.Job, error) {
	payload, err := domain.NewPayload(input.Type, input.AnimeID)
	if err != nil {
		return nil, err
	}

	if input.Priority == 0 {
		input.Priority = domain.PriorityNormal
	}
	if input.Priority < 1 || input.Priority > MaxPriority {
		return nil, fmt.Errorf("%w: must be between 1 and %d", domain.ErrInvalidPriority, MaxPriority)
	}
	if input.MaxAttempts <= 0 {
		input.MaxAttempts = u.defaultMaxAttempts
	}
	if input.Source == "" {
		input.Source = "api"
	}

	job, err := u.repo.Enqueue(ctx, repository.EnqueueInput{
		Payload:     payload,
		Priority:    input.Priority,
		MaxAttempts: input.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Type), input.Source).Inc()
	return job, nil
}

func (u *JobUsecase) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := u.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Attempts returns the attempt history of an existing job.
func (u *JobUsecase) Attempts(ctx context.Context, jobID string) ([]*domain.JobAttempt, error) {
	if _, err := u.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	attempts, err := u.attempts.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

func (u *JobUsecase) List(ctx context.Context, status domain.Status, limit int) ([]*domain.Job, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	jobs, err := u.repo.List(ctx, repository.ListJobsInput{Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (u *JobUsecase) ListForEntity(ctx context.Context, animeID int64) ([]*domain.Job, error) {
	jobs, err := u.repo.ListForEntity(ctx, animeID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for anime %d: %w", animeID, err)
	}
	return jobs, nil
}

func (u *JobUsecase) Statistics(ctx context.Context) (domain.JobStats, error) {
	stats, err := u.repo.Statistics(ctx)
	if err != nil {
		return domain.JobStats{}, fmt.Errorf("job statistics: %w", err)
	}
	return stats, nil
}

func (u *JobUsecase) DeleteOldCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 1 {
		return 0, domain.ErrInvalidRetention
	}
	n, err := u.repo.DeleteOldCompleted(ctx, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return n, nil
}
