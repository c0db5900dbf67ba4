package email

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
)

// FailureAlerter emails an operator when a job exhausts its attempts.
// With no recipient configured it only logs.
type FailureAlerter struct {
	sender Sender
	to     string
	logger *slog.Logger
}

func NewFailureAlerter(sender Sender, to string, logger *slog.Logger) *FailureAlerter {
	return &FailureAlerter{sender: sender, to: to, logger: logger.With("component", "alerts")}
}

func (a *FailureAlerter) JobFailed(ctx context.Context, job *domain.Job) {
	errMsg := ""
	if job.Error != nil {
		errMsg = *job.Error
	}
	a.logger.WarnContext(ctx, "job permanently failed",
		"job_type", job.Type, "entity_id", job.EntityID, "attempts", job.Attempts, "error", errMsg)

	if a.to == "" {
		return
	}

	msg := Message{
		To:      a.to,
		Subject: fmt.Sprintf("[anime-sync] %s job for anime %d failed", job.Type, job.EntityID),
		HTML: fmt.Sprintf(
			"<p>Job <code>%s</code> (%s, anime %d) failed after %d/%d attempts.</p><pre>%s</pre>",
			job.ID, job.Type, job.EntityID, job.Attempts, job.MaxAttempts, html.EscapeString(errMsg),
		),
		Text: fmt.Sprintf("Job %s (%s, anime %d) failed after %d/%d attempts: %s",
			job.ID, job.Type, job.EntityID, job.Attempts, job.MaxAttempts, errMsg),
		Tags: map[string]string{"job_type": string(job.Type), "job_id": job.ID},
	}
	if err := a.sender.Send(ctx, msg); err != nil {
		a.logger.ErrorContext(ctx, "send failure alert", "error", err)
	}
}
