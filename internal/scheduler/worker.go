package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	applog "github.com/ErlanBelekov/anime-sync/internal/log"
	"github.com/ErlanBelekov/anime-sync/internal/metrics"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

// Handler processes one claimed job. A returned error fails the attempt.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

type HandlerFunc func(ctx context.Context, job *domain.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) error { return f(ctx, job) }

// FailureNotifier is told about every job that ends in the failed state.
type FailureNotifier interface {
	JobFailed(ctx context.Context, job *domain.Job)
}

type Worker struct {
	id           string
	repo         repository.JobRepository
	attempts     repository.AttemptRepository
	handlers     map[domain.JobType]Handler
	notifier     FailureNotifier
	logger       *slog.Logger
	pollInterval time.Duration
	concurrency  int
}

func NewWorker(
	repo repository.JobRepository,
	attempts repository.AttemptRepository,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency int,
) *Worker {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		id:           id,
		repo:         repo,
		attempts:     attempts,
		handlers:     make(map[domain.JobType]Handler),
		logger:       logger.With("component", "worker", "worker_id", id),
		pollInterval: pollInterval,
		concurrency:  concurrency,
	}
}

// Handle registers h for jobType. Must be called before Start.
func (w *Worker) Handle(jobType domain.JobType, h Handler) {
	w.handlers[jobType] = h
}

func (w *Worker) OnFailure(n FailureNotifier) {
	w.notifier = n
}

// Start runs the poll loops until ctx is cancelled, then waits for in-flight
// jobs to finish.
func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()
	w.logger.Info("worker started", "concurrency", w.concurrency, "poll_interval", w.pollInterval)

	var wg sync.WaitGroup
	for range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	metrics.WorkerShutdownsTotal.Inc()
	w.logger.Info("worker shut down")
}

func (w *Worker) loop(ctx context.Context) {
	idle := time.NewTimer(w.pollInterval)
	idle.Stop()
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			// Store unavailable: back off like an empty poll and try again.
			w.logger.Error("dequeue job", "error", err)
		}
		if processed {
			continue
		}

		idle.Reset(w.pollInterval)
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was
// processed. The claimed job always runs to completion: cancelling ctx only
// prevents the next claim.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// A claim interrupted by shutdown rolls back and the job stays pending.
	job, err := w.repo.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// Once the claim commits the job belongs to this worker, so the run and
	// its bookkeeping must not be cut short.
	runCtx := context.WithoutCancel(ctx)
	w.runJob(applog.WithJobID(runCtx, job.ID), job)
	return true, nil
}

func (w *Worker) runJob(ctx context.Context, job *domain.Job) {
	jobType := string(job.Type)
	metrics.JobPickupLatency.WithLabelValues(jobType).Observe(time.Since(job.CreatedAt).Seconds())
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	startedAt := time.Now()

	// The attempt record is history only; a failed write must not block the job.
	attempt, err := w.attempts.CreateAttempt(ctx, &domain.JobAttempt{
		JobID:      job.ID,
		AttemptNum: job.Attempts,
		WorkerID:   w.id,
		StartedAt:  startedAt,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "create attempt record", "error", err)
	}

	w.logger.InfoContext(ctx, "processing job",
		"job_type", job.Type, "entity_id", job.EntityID, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	runErr := w.dispatch(ctx, job)
	elapsed := time.Since(startedAt)

	if runErr == nil {
		metrics.JobExecutionDuration.WithLabelValues(jobType, "success").Observe(elapsed.Seconds())
		w.closeAttempt(ctx, attempt, nil, elapsed)
		if err := w.repo.MarkCompleted(ctx, job.ID); err != nil {
			w.logger.ErrorContext(ctx, "mark job complete", "error", err)
			return
		}
		metrics.JobsProcessedTotal.WithLabelValues(jobType, "completed").Inc()
		w.logger.InfoContext(ctx, "job completed", "duration", elapsed)
		return
	}

	errMsg := runErr.Error()
	metrics.JobExecutionDuration.WithLabelValues(jobType, "failure").Observe(elapsed.Seconds())
	w.closeAttempt(ctx, attempt, &errMsg, elapsed)

	updated, err := w.repo.MarkFailed(ctx, job.ID, errMsg)
	if err != nil {
		w.logger.ErrorContext(ctx, "mark job failed", "error", err, "job_error", errMsg)
		return
	}

	if updated.Status == domain.StatusFailed {
		metrics.JobsProcessedTotal.WithLabelValues(jobType, "failed").Inc()
		w.logger.WarnContext(ctx, "job permanently failed", "error", errMsg, "attempts", updated.Attempts)
		if w.notifier != nil {
			w.notifier.JobFailed(ctx, updated)
		}
		return
	}

	metrics.JobsProcessedTotal.WithLabelValues(jobType, "retried").Inc()
	w.logger.WarnContext(ctx, "job failed, will retry",
		"error", errMsg, "attempt", updated.Attempts, "max_attempts", updated.MaxAttempts)
}

// dispatch runs the registered handler, turning a panic into an error so one
// bad job cannot take the worker down.
func (w *Worker) dispatch(ctx context.Context, job *domain.Job) (err error) {
	h, ok := w.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return h.Handle(ctx, job)
}

// closeAttempt writes the outcome to the attempt record, if one was opened.
func (w *Worker) closeAttempt(ctx context.Context, attempt *domain.JobAttempt, errMsg *string, elapsed time.Duration) {
	if attempt == nil {
		return
	}
	if err := w.attempts.CompleteAttempt(ctx, attempt.ID, errMsg, elapsed.Milliseconds()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.ErrorContext(ctx, "complete attempt record", "error", err)
	}
}
