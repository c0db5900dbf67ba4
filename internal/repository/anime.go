package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
)

// AnimeRepository is the persistence side of the handlers. Every write is an
// upsert keyed on natural identifiers so re-running a job is harmless.
type AnimeRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Anime, error)
	// UpsertAnime inserts or updates the anime row and its external ids and
	// stamps refreshed_at.
	UpsertAnime(ctx context.Context, anime *domain.Anime) error
	// EnsureAnime creates a bare row for a related title discovered through
	// another entity, mapping it to the provider's id. Existing rows are
	// left untouched. Returns the local id.
	EnsureAnime(ctx context.Context, provider, externalID, title string) (int64, error)
	// FindByExternalID returns the local id mapped to the provider's id, or
	// domain.ErrAnimeNotFound.
	FindByExternalID(ctx context.Context, provider, externalID string) (int64, error)
	UpsertRelations(ctx context.Context, relations []domain.Relation) error
	ListRelations(ctx context.Context, animeID int64) ([]domain.Relation, error)
	ListStale(ctx context.Context, refreshedBefore time.Time, limit int) ([]int64, error)
}
