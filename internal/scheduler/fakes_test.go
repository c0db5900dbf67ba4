package scheduler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// memQueue mirrors the Postgres store's state machine in memory.
type memQueue struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*domain.Job

	requeueStale int
	failStale    []*domain.Job
	deletedDays  int
	active       map[int64]bool

	// claimGate, when set, holds Dequeue until it is closed or ctx ends,
	// like a claim waiting on a slow database.
	claimGate chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[string]*domain.Job), active: make(map[int64]bool)}
}

func (q *memQueue) Enqueue(_ context.Context, in repository.EnqueueInput) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	raw, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, err
	}
	q.seq++
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	j := &domain.Job{
		ID:          fmt.Sprintf("job-%d", q.seq),
		Type:        in.Payload.JobType(),
		Payload:     raw,
		EntityID:    in.Payload.EntityID(),
		Priority:    in.Priority,
		Status:      domain.StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().Add(time.Duration(q.seq) * time.Microsecond),
	}
	q.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (q *memQueue) Dequeue(ctx context.Context) (*domain.Job, error) {
	if q.claimGate != nil {
		select {
		case <-q.claimGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var eligible []*domain.Job
	for _, j := range q.jobs {
		if j.Status == domain.StatusPending && j.Attempts < j.MaxAttempts {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(a, b int) bool {
		if eligible[a].Priority != eligible[b].Priority {
			return eligible[a].Priority < eligible[b].Priority
		}
		return eligible[a].CreatedAt.Before(eligible[b].CreatedAt)
	})
	j := eligible[0]
	now := time.Now()
	j.Status = domain.StatusRunning
	j.StartedAt = &now
	j.Attempts++
	cp := *j
	return &cp, nil
}

func (q *memQueue) MarkCompleted(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.Status != domain.StatusRunning {
		return domain.ErrJobNotRunning
	}
	now := time.Now()
	j.Status = domain.StatusCompleted
	j.CompletedAt = &now
	j.Error = nil
	return nil
}

func (q *memQueue) MarkFailed(_ context.Context, id, errMsg string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.Status != domain.StatusRunning {
		return nil, domain.ErrJobNotRunning
	}
	if j.Attempts < j.MaxAttempts {
		j.Status = domain.StatusPending
		j.StartedAt = nil
	} else {
		now := time.Now()
		j.Status = domain.StatusFailed
		j.CompletedAt = &now
	}
	j.Error = &errMsg
	cp := *j
	return &cp, nil
}

func (q *memQueue) GetByID(_ context.Context, id string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (q *memQueue) ListPending(ctx context.Context, limit int) ([]*domain.Job, error) {
	return q.List(ctx, repository.ListJobsInput{Status: domain.StatusPending, Limit: limit})
}

func (q *memQueue) List(_ context.Context, in repository.ListJobsInput) ([]*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.Job
	for _, j := range q.jobs {
		if in.Status == "" || j.Status == in.Status {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (q *memQueue) ListForEntity(_ context.Context, animeID int64) ([]*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.Job
	for _, j := range q.jobs {
		if j.EntityID == animeID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (q *memQueue) HasActiveJob(_ context.Context, _ domain.JobType, animeID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active[animeID] {
		return true, nil
	}
	for _, j := range q.jobs {
		if j.EntityID == animeID && !j.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueue) HasRecentFailure(_ context.Context, jobType domain.JobType, animeID int64, since time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.EntityID == animeID && j.Type == jobType && j.Status == domain.StatusFailed &&
			j.CompletedAt != nil && !j.CompletedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueue) DeleteOldCompleted(_ context.Context, days int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deletedDays = days
	return 2, nil
}

func (q *memQueue) Statistics(context.Context) (domain.JobStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s domain.JobStats
	for _, j := range q.jobs {
		switch j.Status {
		case domain.StatusPending:
			s.Pending++
		case domain.StatusRunning:
			s.Running++
		case domain.StatusCompleted:
			s.Completed++
		case domain.StatusFailed:
			s.Failed++
		}
		s.Total++
	}
	return s, nil
}

func (q *memQueue) RequeueStale(context.Context, time.Time, int) (int, error) {
	return q.requeueStale, nil
}

func (q *memQueue) FailStale(context.Context, time.Time, int) ([]*domain.Job, error) {
	return q.failStale, nil
}

func (q *memQueue) enqueue(jobType domain.JobType, animeID int64, priority, maxAttempts int) *domain.Job {
	p, err := domain.NewPayload(jobType, animeID)
	if err != nil {
		panic(err)
	}
	j, err := q.Enqueue(context.Background(), repository.EnqueueInput{Payload: p, Priority: priority, MaxAttempts: maxAttempts})
	if err != nil {
		panic(err)
	}
	return j
}

// memAttempts records the attempt history.
type memAttempts struct {
	mu       sync.Mutex
	attempts []*domain.JobAttempt
}

func (a *memAttempts) CreateAttempt(_ context.Context, at *domain.JobAttempt) (*domain.JobAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *at
	cp.ID = fmt.Sprintf("attempt-%d", len(a.attempts)+1)
	a.attempts = append(a.attempts, &cp)
	return &cp, nil
}

func (a *memAttempts) CompleteAttempt(_ context.Context, id string, errMsg *string, durationMS int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, at := range a.attempts {
		if at.ID == id {
			now := time.Now()
			at.CompletedAt = &now
			at.Error = errMsg
			at.DurationMS = &durationMS
			return nil
		}
	}
	return fmt.Errorf("attempt %s not found", id)
}

func (a *memAttempts) ListByJobID(_ context.Context, jobID string) ([]*domain.JobAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*domain.JobAttempt
	for _, at := range a.attempts {
		if at.JobID == jobID {
			out = append(out, at)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	failed []*domain.Job
}

func (n *recordingNotifier) JobFailed(_ context.Context, job *domain.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, job)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failed)
}

var (
	_ repository.JobRepository     = (*memQueue)(nil)
	_ repository.AttemptRepository = (*memAttempts)(nil)
)
