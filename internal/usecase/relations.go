package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
	"github.com/ErlanBelekov/anime-sync/internal/repository"
)

// RelationsHandler pulls an anime's related titles from a relation-capable
// provider and stores every edge together with its inverse.
type RelationsHandler struct {
	anime    repository.AnimeRepository
	selector *provider.Selector
	logger   *slog.Logger
}

func NewRelationsHandler(anime repository.AnimeRepository, selector *provider.Selector, logger *slog.Logger) *RelationsHandler {
	return &RelationsHandler{
		anime:    anime,
		selector: selector,
		logger:   logger.With("handler", domain.JobTypeRelationsDiscovery),
	}
}

func (h *RelationsHandler) Handle(ctx context.Context, job *domain.Job) error {
	payload, err := job.DecodedPayload()
	if err != nil {
		return err
	}

	anime, err := h.anime.GetByID(ctx, payload.EntityID())
	if err != nil {
		return fmt.Errorf("load anime %d: %w", payload.EntityID(), err)
	}

	rp, err := h.selector.RelationProvider()
	if err != nil {
		return err
	}
	externalID, ok := anime.ExternalIDs[rp.Name()]
	if !ok {
		return fmt.Errorf("anime %d, %s: %w", anime.ID, rp.Name(), domain.ErrNoExternalID)
	}

	related, err := rp.GetRelations(ctx, externalID)
	if err != nil {
		return fmt.Errorf("fetch relations for anime %d: %w", anime.ID, err)
	}

	seen := make(map[domain.Relation]struct{}, 2*len(related))
	edges := make([]domain.Relation, 0, 2*len(related))
	for _, r := range related {
		if r.ExternalID == externalID {
			continue
		}
		relatedID, err := h.anime.EnsureAnime(ctx, rp.Name(), r.ExternalID, r.Title)
		if err != nil {
			return fmt.Errorf("ensure related anime %s:%s: %w", rp.Name(), r.ExternalID, err)
		}
		if relatedID == anime.ID {
			continue
		}

		for _, edge := range (domain.Relation{AnimeID: anime.ID, RelatedID: relatedID, Kind: r.Kind}).WithInverse() {
			if _, dup := seen[edge]; dup {
				continue
			}
			seen[edge] = struct{}{}
			edges = append(edges, edge)
		}
	}

	if err := h.anime.UpsertRelations(ctx, edges); err != nil {
		return fmt.Errorf("save relations for anime %d: %w", anime.ID, err)
	}
	h.logger.InfoContext(ctx, "relations discovered", "anime_id", anime.ID, "provider", rp.Name(), "edges", len(edges))
	return nil
}
