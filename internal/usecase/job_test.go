package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/usecase"
)

func newJobUsecase() (*usecase.JobUsecase, *memJobRepo) {
	repo := &memJobRepo{attempts: map[string][]*domain.JobAttempt{}}
	return usecase.NewJobUsecase(repo, &memAttemptRepo{jobs: repo}, 4), repo
}

func TestEnqueue_AppliesDefaults(t *testing.T) {
	uc, repo := newJobUsecase()

	job, err := uc.Enqueue(context.Background(), usecase.EnqueueJobInput{Type: domain.JobTypeEnrichment, AnimeID: 7})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Priority != domain.PriorityNormal {
		t.Errorf("priority = %d, want %d", job.Priority, domain.PriorityNormal)
	}
	if job.MaxAttempts != 4 {
		t.Errorf("max attempts = %d, want configured default 4", job.MaxAttempts)
	}
	if _, ok := repo.enqueued[0].Payload.(domain.EnrichmentPayload); !ok {
		t.Errorf("payload = %T, want EnrichmentPayload", repo.enqueued[0].Payload)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input usecase.EnqueueJobInput
		want  error
	}{
		{"unknown type", usecase.EnqueueJobInput{Type: "reindex", AnimeID: 1}, domain.ErrUnknownJobType},
		{"zero entity", usecase.EnqueueJobInput{Type: domain.JobTypeEnrichment}, domain.ErrInvalidPayload},
		{"negative priority", usecase.EnqueueJobInput{Type: domain.JobTypeEnrichment, AnimeID: 1, Priority: -1}, domain.ErrInvalidPriority},
		{"priority too large", usecase.EnqueueJobInput{Type: domain.JobTypeEnrichment, AnimeID: 1, Priority: usecase.MaxPriority + 1}, domain.ErrInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo := newJobUsecase()
			_, err := uc.Enqueue(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(repo.enqueued) != 0 {
				t.Error("invalid input reached the store")
			}
		})
	}
}

func TestAttempts_UnknownJob(t *testing.T) {
	uc, _ := newJobUsecase()

	if _, err := uc.Attempts(context.Background(), "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestAttempts_ReturnsHistory(t *testing.T) {
	uc, repo := newJobUsecase()
	repo.attempts["job-1"] = []*domain.JobAttempt{{ID: "a1", JobID: "job-1", AttemptNum: 1}}

	got, err := uc.Attempts(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(got) != 1 || got[0].AttemptNum != 1 {
		t.Fatalf("attempts = %v", got)
	}
}

func TestList_InvalidStatus(t *testing.T) {
	uc, _ := newJobUsecase()

	if _, err := uc.List(context.Background(), "stuck", 10); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestDeleteOldCompleted(t *testing.T) {
	uc, repo := newJobUsecase()

	if _, err := uc.DeleteOldCompleted(context.Background(), 0); !errors.Is(err, domain.ErrInvalidRetention) {
		t.Fatalf("err = %v, want ErrInvalidRetention", err)
	}

	n, err := uc.DeleteOldCompleted(context.Background(), 30)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 4 || repo.deleted != 30 {
		t.Errorf("deleted = %d days=%d, want 4 and 30", n, repo.deleted)
	}
}
