package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/metrics"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

const reapBatchSize = 100

// Reaper recovers jobs left running by a worker that died mid-job: anything
// running longer than staleTimeout is requeued, or failed if it has no
// attempts left.
type Reaper struct {
	repo         repository.JobRepository
	notifier     FailureNotifier
	logger       *slog.Logger
	interval     time.Duration
	staleTimeout time.Duration
}

func NewReaper(repo repository.JobRepository, logger *slog.Logger, interval, staleTimeout time.Duration) *Reaper {
	return &Reaper{
		repo:         repo,
		logger:       logger.With("component", "reaper"),
		interval:     interval,
		staleTimeout: staleTimeout,
	}
}

func (r *Reaper) OnFailure(n FailureNotifier) {
	r.notifier = n
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "stale_timeout", r.staleTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap runs a single sweep.
func (r *Reaper) Reap(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds()) }()

	staleCutoff := start.Add(-r.staleTimeout)

	requeued, err := r.repo.RequeueStale(ctx, staleCutoff, reapBatchSize)
	if err != nil {
		r.logger.Error("requeue stale jobs", "error", err)
	} else if requeued > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("requeued").Add(float64(requeued))
		r.logger.Warn("requeued stale jobs", "count", requeued)
	}

	failed, err := r.repo.FailStale(ctx, staleCutoff, reapBatchSize)
	if err != nil {
		r.logger.Error("fail stale jobs", "error", err)
	} else if len(failed) > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("failed").Add(float64(len(failed)))
		r.logger.Warn("permanently failed stale jobs (max attempts exceeded)", "count", len(failed))
		if r.notifier != nil {
			for _, job := range failed {
				r.notifier.JobFailed(ctx, job)
			}
		}
	}

	stats, err := r.repo.Statistics(ctx)
	if err != nil {
		r.logger.Error("sample queue depth", "error", err)
		return
	}
	metrics.QueueDepth.WithLabelValues(string(domain.StatusPending)).Set(float64(stats.Pending))
	metrics.QueueDepth.WithLabelValues(string(domain.StatusRunning)).Set(float64(stats.Running))
	metrics.QueueDepth.WithLabelValues(string(domain.StatusCompleted)).Set(float64(stats.Completed))
	metrics.QueueDepth.WithLabelValues(string(domain.StatusFailed)).Set(float64(stats.Failed))
}
