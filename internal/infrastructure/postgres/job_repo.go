package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, job_type, payload, entity_id, priority, status,
	attempts, max_attempts, created_at, started_at, completed_at, error`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Enqueue(ctx context.Context, input repository.EnqueueInput) (*domain.Job, error) {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (job_type, payload, entity_id, priority, status, attempts, max_attempts)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5)
		RETURNING `+jobColumns,
		input.Payload.JobType(),
		json.RawMessage(payload),
		input.Payload.EntityID(),
		input.Priority,
		maxAttempts,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	// One statement: the row lock from FOR UPDATE SKIP LOCKED is held until
	// the UPDATE commits, so concurrent callers each see a different row or none.
	row := r.pool.QueryRow(ctx, `
		UPDATE jobs
		SET    status     = 'running',
		       started_at = NOW(),
		       attempts   = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE  status   = 'pending'
			  AND  attempts < max_attempts
			ORDER BY priority ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return domain.ErrJobNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status = 'completed', completed_at = NOW(), error = NULL
		WHERE  id = $1 AND status = 'running'`, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.notRunning(ctx, jobID)
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, errMsg string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}
	// attempts was already incremented by the claim, so it is compared as-is.
	row := r.pool.QueryRow(ctx, `
		UPDATE jobs
		SET    status       = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
		       started_at   = CASE WHEN attempts < max_attempts THEN NULL ELSE started_at END,
		       completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE NOW() END,
		       error        = $2
		WHERE  id = $1 AND status = 'running'
		RETURNING `+jobColumns, jobID, errMsg)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, r.notRunning(ctx, jobID)
		}
		return nil, fmt.Errorf("fail job: %w", err)
	}
	return job, nil
}

// notRunning tells apart a missing job from one another actor already moved
// out of running (e.g. the reaper).
func (r *JobRepository) notRunning(ctx context.Context, jobID string) error {
	if _, err := r.GetByID(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrJobNotRunning
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (r *JobRepository) ListPending(ctx context.Context, limit int) ([]*domain.Job, error) {
	return r.List(ctx, repository.ListJobsInput{Status: domain.StatusPending, Limit: limit})
}

func (r *JobRepository) List(ctx context.Context, input repository.ListJobsInput) ([]*domain.Job, error) {
	var args []any
	var where []string

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM jobs
		%s
		ORDER BY priority ASC, created_at ASC
		LIMIT $%d`, jobColumns, whereClause, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) ListForEntity(ctx context.Context, animeID int64) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE entity_id = $1
		ORDER BY created_at DESC`, animeID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for entity: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) HasActiveJob(ctx context.Context, jobType domain.JobType, animeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE job_type = $1 AND entity_id = $2 AND status IN ('pending', 'running')
		)`, jobType, animeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active job: %w", err)
	}
	return exists, nil
}

func (r *JobRepository) HasRecentFailure(ctx context.Context, jobType domain.JobType, animeID int64, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE job_type = $1 AND entity_id = $2 AND status = 'failed' AND completed_at >= $3
		)`, jobType, animeID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent failure: %w", err)
	}
	return exists, nil
}

func (r *JobRepository) DeleteOldCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed')
		  AND completed_at < NOW() - make_interval(days => $1)`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) Statistics(ctx context.Context) (domain.JobStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return domain.JobStats{}, fmt.Errorf("job statistics: %w", err)
	}
	defer rows.Close()

	var stats domain.JobStats
	for rows.Next() {
		var status domain.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return domain.JobStats{}, fmt.Errorf("scan job statistics: %w", err)
		}
		switch status {
		case domain.StatusPending:
			stats.Pending = count
		case domain.StatusRunning:
			stats.Running = count
		case domain.StatusCompleted:
			stats.Completed = count
		case domain.StatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.JobStats{}, fmt.Errorf("iterate job statistics: %w", err)
	}
	return stats, nil
}

func (r *JobRepository) RequeueStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status     = 'pending',
		       started_at = NULL,
		       error      = 'worker timeout'
		WHERE id IN (
			SELECT id FROM jobs
			WHERE  status     = 'running'
			  AND  started_at < $1
			  AND  attempts   < max_attempts
			ORDER BY started_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *JobRepository) FailStale(ctx context.Context, staleCutoff time.Time, limit int) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE jobs
		SET    status       = 'failed',
		       completed_at = NOW(),
		       error        = 'worker timeout: max attempts exceeded'
		WHERE id IN (
			SELECT id FROM jobs
			WHERE  status     = 'running'
			  AND  started_at < $1
			  AND  attempts  >= max_attempts
			ORDER BY started_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, staleCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return collectJobs(rows)
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &j.EntityID, &j.Priority, &j.Status,
		&j.Attempts, &j.MaxAttempts, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
