package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
)

type EnqueueInput struct {
	Payload     domain.Payload
	Priority    int
	MaxAttempts int
}

type ListJobsInput struct {
	Status domain.Status // empty = all statuses
	Limit  int
}

// JobRepository is the durable queue. Usecases and the worker depend on this
// interface so tests can swap in an in-memory fake.
type JobRepository interface {
	Enqueue(ctx context.Context, input EnqueueInput) (*domain.Job, error)

	// Dequeue claims the next pending job, ordered by (priority, created_at).
	// Returns (nil, nil) when nothing is eligible.
	Dequeue(ctx context.Context) (*domain.Job, error)
	MarkCompleted(ctx context.Context, jobID string) error
	// MarkFailed requeues the job while attempts remain, otherwise fails it
	// for good. The returned job carries the resulting status.
	MarkFailed(ctx context.Context, jobID string, errMsg string) (*domain.Job, error)

	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Job, error)
	List(ctx context.Context, input ListJobsInput) ([]*domain.Job, error)
	ListForEntity(ctx context.Context, animeID int64) ([]*domain.Job, error)
	HasActiveJob(ctx context.Context, jobType domain.JobType, animeID int64) (bool, error)
	// HasRecentFailure reports whether a job of this type for the entity
	// exhausted its attempts at or after since.
	HasRecentFailure(ctx context.Context, jobType domain.JobType, animeID int64, since time.Time) (bool, error)
	DeleteOldCompleted(ctx context.Context, olderThanDays int) (int64, error)
	Statistics(ctx context.Context) (domain.JobStats, error)

	// Reaper methods: recover jobs left running by a crashed worker.
	RequeueStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	FailStale(ctx context.Context, staleCutoff time.Time, limit int) ([]*domain.Job, error)
}
