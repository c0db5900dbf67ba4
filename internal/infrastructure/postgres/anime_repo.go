package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AnimeRepository struct {
	pool *pgxpool.Pool
}

func NewAnimeRepository(pool *pgxpool.Pool) *AnimeRepository {
	return &AnimeRepository{pool: pool}
}

func (r *AnimeRepository) GetByID(ctx context.Context, id int64) (*domain.Anime, error) {
	var a domain.Anime
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, synopsis, episodes, status, score, refreshed_at, created_at, updated_at
		FROM anime
		WHERE id = $1`, id,
	).Scan(&a.ID, &a.Title, &a.Synopsis, &a.Episodes, &a.Status, &a.Score,
		&a.RefreshedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAnimeNotFound
		}
		return nil, fmt.Errorf("get anime: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT provider, external_id FROM anime_external_ids WHERE anime_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get external ids: %w", err)
	}
	defer rows.Close()

	a.ExternalIDs = make(map[string]string)
	for rows.Next() {
		var provider, externalID string
		if err := rows.Scan(&provider, &externalID); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		a.ExternalIDs[provider] = externalID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external ids: %w", err)
	}
	return &a, nil
}

func (r *AnimeRepository) UpsertAnime(ctx context.Context, a *domain.Anime) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO anime (id, title, synopsis, episodes, status, score, refreshed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET title        = EXCLUDED.title,
		    synopsis     = EXCLUDED.synopsis,
		    episodes     = EXCLUDED.episodes,
		    status       = EXCLUDED.status,
		    score        = EXCLUDED.score,
		    refreshed_at = NOW(),
		    updated_at   = NOW()`,
		a.ID, a.Title, a.Synopsis, a.Episodes, a.Status, a.Score,
	)
	if err != nil {
		return fmt.Errorf("upsert anime %d: %w", a.ID, err)
	}

	for provider, externalID := range a.ExternalIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO anime_external_ids (anime_id, provider, external_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (anime_id, provider) DO UPDATE
			SET external_id = EXCLUDED.external_id`,
			a.ID, provider, externalID,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("upsert external id %s=%s for anime %d: %w", provider, externalID, a.ID, domain.ErrExternalIDTaken)
			}
			return fmt.Errorf("upsert external id %s for anime %d: %w", provider, a.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *AnimeRepository) FindByExternalID(ctx context.Context, provider, externalID string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT anime_id FROM anime_external_ids
		WHERE provider = $1 AND external_id = $2`, provider, externalID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrAnimeNotFound
		}
		return 0, fmt.Errorf("find by external id: %w", err)
	}
	return id, nil
}

func (r *AnimeRepository) EnsureAnime(ctx context.Context, provider, externalID, title string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes concurrent discoveries of the same provider title so only
	// one local row is ever created for it.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, provider, externalID,
	); err != nil {
		return 0, fmt.Errorf("advisory lock: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		SELECT anime_id FROM anime_external_ids
		WHERE provider = $1 AND external_id = $2`, provider, externalID,
	).Scan(&id)
	switch {
	case err == nil:
		return id, tx.Commit(ctx)
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("lookup external id: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO anime (title) VALUES ($1) RETURNING id`, title,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert anime: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO anime_external_ids (anime_id, provider, external_id)
		VALUES ($1, $2, $3)`, id, provider, externalID,
	); err != nil {
		return 0, fmt.Errorf("insert external id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

func (r *AnimeRepository) UpsertRelations(ctx context.Context, relations []domain.Relation) error {
	if len(relations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rel := range relations {
		batch.Queue(`
			INSERT INTO anime_relations (anime_id, related_id, kind)
			VALUES ($1, $2, $3)
			ON CONFLICT (anime_id, related_id, kind) DO UPDATE
			SET updated_at = NOW()`,
			rel.AnimeID, rel.RelatedID, rel.Kind)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert relations: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *AnimeRepository) ListRelations(ctx context.Context, animeID int64) ([]domain.Relation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT anime_id, related_id, kind
		FROM anime_relations
		WHERE anime_id = $1
		ORDER BY related_id, kind`, animeID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var relations []domain.Relation
	for rows.Next() {
		var rel domain.Relation
		if err := rows.Scan(&rel.AnimeID, &rel.RelatedID, &rel.Kind); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return relations, nil
}

func (r *AnimeRepository) ListStale(ctx context.Context, refreshedBefore time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM anime
		WHERE refreshed_at IS NULL OR refreshed_at < $1
		ORDER BY refreshed_at ASC NULLS FIRST
		LIMIT $2`, refreshedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale anime: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan anime id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale anime: %w", err)
	}
	return ids, nil
}
