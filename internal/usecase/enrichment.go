package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

// EnrichmentHandler refreshes one anime from the best available provider,
// falling back down the ranking when a provider fails.
type EnrichmentHandler struct {
	anime    repository.AnimeRepository
	selector *provider.Selector
	logger   *slog.Logger
}

func NewEnrichmentHandler(anime repository.AnimeRepository, selector *provider.Selector, logger *slog.Logger) *EnrichmentHandler {
	return &EnrichmentHandler{
		anime:    anime,
		selector: selector,
		logger:   logger.With("handler", domain.JobTypeEnrichment),
	}
}

func (h *EnrichmentHandler) Handle(ctx context.Context, job *domain.Job) error {
	payload, err := job.DecodedPayload()
	if err != nil {
		return err
	}

	anime, err := h.anime.GetByID(ctx, payload.EntityID())
	if err != nil {
		return fmt.Errorf("load anime %d: %w", payload.EntityID(), err)
	}

	providers := h.selector.Ranked()
	if len(providers) == 0 {
		return domain.ErrNoProviders
	}

	var errs []error
	for _, p := range providers {
		entity, err := h.fetch(ctx, p, anime)
		if err != nil {
			h.logger.WarnContext(ctx, "provider failed, trying next", "provider", p.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		if entity == nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), domain.ErrAnimeNotFound))
			continue
		}

		merge(anime, p.Name(), entity)
		if err := h.anime.UpsertAnime(ctx, anime); err != nil {
			return fmt.Errorf("save anime %d: %w", anime.ID, err)
		}
		h.logger.InfoContext(ctx, "anime enriched", "anime_id", anime.ID, "provider", p.Name())
		return nil
	}

	return fmt.Errorf("enrich anime %d: %w", anime.ID, errors.Join(errs...))
}

// fetch looks the anime up by the provider's own id when known, otherwise
// by title. A title hit whose provider id already belongs to another local
// anime is rejected rather than claimed.
func (h *EnrichmentHandler) fetch(ctx context.Context, p provider.Provider, anime *domain.Anime) (*provider.Entity, error) {
	if externalID, ok := anime.ExternalIDs[p.Name()]; ok {
		return p.GetByID(ctx, externalID)
	}
	if anime.Title == "" {
		return nil, fmt.Errorf("%s: %w", p.Name(), domain.ErrNoExternalID)
	}

	results, err := p.Search(ctx, anime.Title, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	hit := &results[0]

	owner, err := h.anime.FindByExternalID(ctx, p.Name(), hit.ExternalID)
	switch {
	case errors.Is(err, domain.ErrAnimeNotFound):
		return hit, nil
	case err != nil:
		return nil, fmt.Errorf("resolve %s id %s: %w", p.Name(), hit.ExternalID, err)
	case owner != anime.ID:
		return nil, fmt.Errorf("%s id %s belongs to anime %d: %w", p.Name(), hit.ExternalID, owner, domain.ErrExternalIDTaken)
	}
	return hit, nil
}

// merge copies provider fields over the stored anime. Empty provider values
// never erase what is already known.
func merge(anime *domain.Anime, providerName string, e *provider.Entity) {
	if e.Title != "" {
		anime.Title = e.Title
	}
	if e.Synopsis != "" {
		anime.Synopsis = e.Synopsis
	}
	if e.Status != "" {
		anime.Status = e.Status
	}
	if e.Episodes != nil {
		anime.Episodes = e.Episodes
	}
	if e.Score != nil {
		anime.Score = e.Score
	}
	if anime.ExternalIDs == nil {
		anime.ExternalIDs = make(map[string]string)
	}
	anime.ExternalIDs[providerName] = e.ExternalID
}
