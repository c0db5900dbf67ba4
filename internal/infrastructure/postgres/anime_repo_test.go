package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/anime-sync/internal/testutil"
)

func TestAnimeRepository_EnsureAnimeIsIdempotent(t *testing.T) {
	repo := postgres.NewAnimeRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{})
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := repo.EnsureAnime(ctx, "jikan", "5114", "Fullmetal Alchemist: Brotherhood")
			if err != nil {
				t.Errorf("ensure anime: %v", err)
				return
			}
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, ids, 1)

	for id := range ids {
		anime, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Fullmetal Alchemist: Brotherhood", anime.Title)
		assert.Equal(t, map[string]string{"jikan": "5114"}, anime.ExternalIDs)
		assert.Nil(t, anime.RefreshedAt)
	}
}

func TestAnimeRepository_UpsertAnime(t *testing.T) {
	repo := postgres.NewAnimeRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	id, err := repo.EnsureAnime(ctx, "jikan", "1", "Cowboy Bebop")
	require.NoError(t, err)

	anime, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	episodes := 26
	score := 8.75
	anime.Synopsis = "Space bounty hunters."
	anime.Episodes = &episodes
	anime.Score = &score
	anime.Status = "Finished Airing"
	anime.ExternalIDs["kitsu"] = "1"
	require.NoError(t, repo.UpsertAnime(ctx, anime))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Space bounty hunters.", got.Synopsis)
	require.NotNil(t, got.Episodes)
	assert.Equal(t, 26, *got.Episodes)
	require.NotNil(t, got.Score)
	assert.InDelta(t, 8.75, *got.Score, 0.001)
	assert.Equal(t, map[string]string{"jikan": "1", "kitsu": "1"}, got.ExternalIDs)
	assert.NotNil(t, got.RefreshedAt)

	_, err = repo.GetByID(ctx, id+1000)
	assert.ErrorIs(t, err, domain.ErrAnimeNotFound)
}

func TestAnimeRepository_ExternalIDBelongsToOneAnime(t *testing.T) {
	repo := postgres.NewAnimeRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	owner, err := repo.EnsureAnime(ctx, "jikan", "20", "Naruto")
	require.NoError(t, err)
	other, err := repo.EnsureAnime(ctx, "kitsu", "11", "Naruto")
	require.NoError(t, err)

	found, err := repo.FindByExternalID(ctx, "jikan", "20")
	require.NoError(t, err)
	assert.Equal(t, owner, found)
	_, err = repo.FindByExternalID(ctx, "jikan", "21")
	assert.ErrorIs(t, err, domain.ErrAnimeNotFound)

	anime, err := repo.GetByID(ctx, other)
	require.NoError(t, err)
	anime.ExternalIDs["jikan"] = "20"
	assert.ErrorIs(t, repo.UpsertAnime(ctx, anime), domain.ErrExternalIDTaken)

	got, err := repo.GetByID(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"kitsu": "11"}, got.ExternalIDs)
}

func TestAnimeRepository_UpsertRelationsIsIdempotent(t *testing.T) {
	repo := postgres.NewAnimeRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	a, err := repo.EnsureAnime(ctx, "jikan", "1", "Season 1")
	require.NoError(t, err)
	b, err := repo.EnsureAnime(ctx, "jikan", "2", "Season 2")
	require.NoError(t, err)

	edges := domain.Relation{AnimeID: a, RelatedID: b, Kind: domain.RelationSequel}.WithInverse()
	require.NoError(t, repo.UpsertRelations(ctx, edges[:]))
	require.NoError(t, repo.UpsertRelations(ctx, edges[:]))
	require.NoError(t, repo.UpsertRelations(ctx, nil))

	fromA, err := repo.ListRelations(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []domain.Relation{{AnimeID: a, RelatedID: b, Kind: domain.RelationSequel}}, fromA)

	fromB, err := repo.ListRelations(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []domain.Relation{{AnimeID: b, RelatedID: a, Kind: domain.RelationPrequel}}, fromB)
}

func TestAnimeRepository_ListStale(t *testing.T) {
	repo := postgres.NewAnimeRepository(testutil.NewTestDB(t))
	ctx := context.Background()

	never, err := repo.EnsureAnime(ctx, "jikan", "1", "Never refreshed")
	require.NoError(t, err)
	fresh, err := repo.EnsureAnime(ctx, "jikan", "2", "Fresh")
	require.NoError(t, err)

	anime, err := repo.GetByID(ctx, fresh)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertAnime(ctx, anime))

	ids, err := repo.ListStale(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{never}, ids)
}
