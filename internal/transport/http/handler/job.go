package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/usecase"
)

// JobService is satisfied by *usecase.JobUsecase.
type JobService interface {
	Enqueue(ctx context.Context, input usecase.EnqueueJobInput) (*domain.Job, error)
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
	Attempts(ctx context.Context, jobID string) ([]*domain.JobAttempt, error)
	List(ctx context.Context, status domain.Status, limit int) ([]*domain.Job, error)
	ListForEntity(ctx context.Context, animeID int64) ([]*domain.Job, error)
	Statistics(ctx context.Context) (domain.JobStats, error)
	DeleteOldCompleted(ctx context.Context, olderThanDays int) (int64, error)
}

type JobHandler struct {
	jobs   JobService
	logger *slog.Logger
}

func NewJobHandler(jobs JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.With("component", "job_handler")}
}

type createJobRequest struct {
	JobType     domain.JobType `json:"job_type"     binding:"required,oneof=enrichment relations_discovery"`
	EntityID    int64          `json:"entity_id"    binding:"required,min=1"`
	Priority    int            `json:"priority"     binding:"omitempty,min=1,max=100"`
	MaxAttempts int            `json:"max_attempts" binding:"omitempty,min=1,max=20"`
}

type jobResponse struct {
	ID          string          `json:"id"`
	JobType     domain.JobType  `json:"job_type"`
	Payload     json.RawMessage `json:"payload"`
	EntityID    int64           `json:"entity_id"`
	Priority    int             `json:"priority"`
	Status      domain.Status   `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
}

type attemptResponse struct {
	AttemptNum  int        `json:"attempt_num"`
	WorkerID    string     `json:"worker_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		JobType:     j.Type,
		Payload:     j.Payload,
		EntityID:    j.EntityID,
		Priority:    j.Priority,
		Status:      j.Status,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Error:       j.Error,
	}
}

func toJobResponses(jobs []*domain.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}

func (h *JobHandler) Create(ctx *gin.Context) {
	var req createJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.Enqueue(ctx.Request.Context(), usecase.EnqueueJobInput{
		Type:        req.JobType,
		AnimeID:     req.EntityID,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
		Source:      "api",
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPriority):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidPriority})
		case errors.Is(err, domain.ErrUnknownJobType), errors.Is(err, domain.ErrInvalidPayload):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "enqueue job", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusCreated, toJobResponse(job))
}

func (h *JobHandler) GetByID(ctx *gin.Context) {
	jobID, ok := jobIDParam(ctx)
	if !ok {
		return
	}

	job, err := h.jobs.GetByID(ctx.Request.Context(), jobID)
	if err != nil {
		h.writeJobError(ctx, "get job by id", jobID, err)
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) ListAttempts(ctx *gin.Context) {
	jobID, ok := jobIDParam(ctx)
	if !ok {
		return
	}

	attempts, err := h.jobs.Attempts(ctx.Request.Context(), jobID)
	if err != nil {
		h.writeJobError(ctx, "list attempts", jobID, err)
		return
	}

	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			AttemptNum:  a.AttemptNum,
			WorkerID:    a.WorkerID,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
			Error:       a.Error,
			DurationMS:  a.DurationMS,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"attempts": out})
}

type listJobsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (h *JobHandler) List(ctx *gin.Context) {
	var q listJobsQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	jobs, err := h.jobs.List(ctx.Request.Context(), domain.Status(q.Status), q.Limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStatus) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidStatus})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "list jobs", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"jobs": toJobResponses(jobs)})
}

func (h *JobHandler) ListForAnime(ctx *gin.Context) {
	animeID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || animeID <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidAnimeID})
		return
	}

	jobs, err := h.jobs.ListForEntity(ctx.Request.Context(), animeID)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "list jobs for anime", "anime_id", animeID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"jobs": toJobResponses(jobs)})
}

func (h *JobHandler) Stats(ctx *gin.Context) {
	stats, err := h.jobs.Statistics(ctx.Request.Context())
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "job statistics", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (h *JobHandler) DeleteCompleted(ctx *gin.Context) {
	days, err := strconv.Atoi(ctx.Query("older_than_days"))
	if err != nil || days < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidDays})
		return
	}

	deleted, err := h.jobs.DeleteOldCompleted(ctx.Request.Context(), days)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "delete old jobs", "older_than_days", days, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func jobIDParam(ctx *gin.Context) (string, bool) {
	jobID := ctx.Param("id")
	if _, err := uuid.Parse(jobID); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidJobID})
		return "", false
	}
	return jobID, true
}

func (h *JobHandler) writeJobError(ctx *gin.Context, op, jobID string, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		return
	}
	h.logger.ErrorContext(ctx.Request.Context(), op, "job_id", jobID, "error", err)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}
