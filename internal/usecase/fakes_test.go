package usecase_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// ---- anime store ----

type memAnimeRepo struct {
	mu        sync.Mutex
	nextID    int64
	anime     map[int64]*domain.Anime
	relations map[domain.Relation]struct{}
	upserts   int
}

func newMemAnimeRepo(seed ...*domain.Anime) *memAnimeRepo {
	r := &memAnimeRepo{
		nextID:    1000,
		anime:     make(map[int64]*domain.Anime),
		relations: make(map[domain.Relation]struct{}),
	}
	for _, a := range seed {
		r.anime[a.ID] = a
	}
	return r
}

func (r *memAnimeRepo) GetByID(_ context.Context, id int64) (*domain.Anime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anime[id]
	if !ok {
		return nil, domain.ErrAnimeNotFound
	}
	cp := *a
	cp.ExternalIDs = make(map[string]string, len(a.ExternalIDs))
	for k, v := range a.ExternalIDs {
		cp.ExternalIDs[k] = v
	}
	return &cp, nil
}

func (r *memAnimeRepo) UpsertAnime(_ context.Context, a *domain.Anime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Same uniqueness as anime_external_ids (provider, external_id).
	for provider, externalID := range a.ExternalIDs {
		for id, other := range r.anime {
			if id != a.ID && other.ExternalIDs[provider] == externalID {
				return domain.ErrExternalIDTaken
			}
		}
	}
	now := time.Now()
	cp := *a
	cp.RefreshedAt = &now
	r.anime[a.ID] = &cp
	r.upserts++
	return nil
}

func (r *memAnimeRepo) EnsureAnime(_ context.Context, providerName, externalID, title string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.anime {
		if a.ExternalIDs[providerName] == externalID {
			return id, nil
		}
	}
	r.nextID++
	r.anime[r.nextID] = &domain.Anime{
		ID:          r.nextID,
		Title:       title,
		ExternalIDs: map[string]string{providerName: externalID},
	}
	return r.nextID, nil
}

func (r *memAnimeRepo) FindByExternalID(_ context.Context, providerName, externalID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.anime {
		if ext, ok := a.ExternalIDs[providerName]; ok && ext == externalID {
			return id, nil
		}
	}
	return 0, domain.ErrAnimeNotFound
}

func (r *memAnimeRepo) UpsertRelations(_ context.Context, rels []domain.Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rel := range rels {
		r.relations[rel] = struct{}{}
	}
	return nil
}

func (r *memAnimeRepo) ListRelations(_ context.Context, animeID int64) ([]domain.Relation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Relation
	for rel := range r.relations {
		if rel.AnimeID == animeID {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RelatedID != out[j].RelatedID {
			return out[i].RelatedID < out[j].RelatedID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (r *memAnimeRepo) ListStale(context.Context, time.Time, int) ([]int64, error) {
	return nil, nil
}

func (r *memAnimeRepo) allRelations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.relations)
}

// ---- providers ----

type fakeProvider struct {
	name      string
	byID      map[string]*provider.Entity
	search    []provider.Entity
	relations map[string][]provider.RelatedEntity
	err       error
	calls     int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(context.Context, string, int) ([]provider.Entity, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.search, nil
}

func (p *fakeProvider) GetByID(_ context.Context, id string) (*provider.Entity, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.byID[id], nil
}

type fakeRelationProvider struct{ *fakeProvider }

func (p fakeRelationProvider) GetRelations(_ context.Context, id string) ([]provider.RelatedEntity, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.relations[id], nil
}

func newSelector(providers ...provider.Provider) *provider.Selector {
	sel := provider.NewSelector(provider.NewRegistry(nil))
	for i, p := range providers {
		sel.Register(p, i+1)
	}
	return sel
}

// ---- job store ----

type memJobRepo struct {
	repository.JobRepository // unimplemented methods panic

	enqueued []repository.EnqueueInput
	deleted  int
	attempts map[string][]*domain.JobAttempt
}

func (r *memJobRepo) Enqueue(_ context.Context, in repository.EnqueueInput) (*domain.Job, error) {
	r.enqueued = append(r.enqueued, in)
	return &domain.Job{
		ID:          fmt.Sprintf("job-%d", len(r.enqueued)),
		Type:        in.Payload.JobType(),
		EntityID:    in.Payload.EntityID(),
		Priority:    in.Priority,
		Status:      domain.StatusPending,
		MaxAttempts: in.MaxAttempts,
	}, nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	if _, ok := r.attempts[id]; !ok {
		return nil, domain.ErrJobNotFound
	}
	return &domain.Job{ID: id}, nil
}

func (r *memJobRepo) DeleteOldCompleted(_ context.Context, days int) (int64, error) {
	r.deleted = days
	return 4, nil
}

type memAttemptRepo struct {
	repository.AttemptRepository
	jobs *memJobRepo
}

func (r *memAttemptRepo) ListByJobID(_ context.Context, id string) ([]*domain.JobAttempt, error) {
	return r.jobs.attempts[id], nil
}
