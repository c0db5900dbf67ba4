// seed inserts a handful of well-known anime and enqueues enrichment and
// relations jobs for them in the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
	"github.com/ErlanBelekov/anime-sync/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/anime-sync/internal/provider"
	"github.com/ErlanBelekov/anime-sync/internal/usecase"
)

type animeSpec struct {
	malID string
	title string
}

var titles = []animeSpec{
	{"1", "Cowboy Bebop"},
	{"5114", "Fullmetal Alchemist: Brotherhood"},
	{"9253", "Steins;Gate"},
	{"16498", "Shingeki no Kyojin"},
	{"20", "Naruto"},
	{"21", "One Piece"},
	{"30276", "One Punch Man"},
	{"38000", "Kimetsu no Yaiba"},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set (run: direnv allow)")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	animeRepo := postgres.NewAnimeRepository(pool)
	jobs := usecase.NewJobUsecase(postgres.NewJobRepository(pool), postgres.NewAttemptRepository(pool), domain.DefaultMaxAttempts)

	var enqueued int
	var sampleIDs []string
	for i, spec := range titles {
		id, err := animeRepo.EnsureAnime(ctx, provider.JikanName, spec.malID, spec.title)
		if err != nil {
			log.Fatalf("ensure anime %s: %v", spec.title, err)
		}

		// The first two titles jump the queue.
		priority := domain.PriorityNormal
		if i < 2 {
			priority = domain.PriorityHigh
		}

		for _, jobType := range []domain.JobType{domain.JobTypeEnrichment, domain.JobTypeRelationsDiscovery} {
			job, err := jobs.Enqueue(ctx, usecase.EnqueueJobInput{
				Type:     jobType,
				AnimeID:  id,
				Priority: priority,
				Source:   "seed",
			})
			if err != nil {
				log.Fatalf("enqueue %s for %s: %v", jobType, spec.title, err)
			}
			enqueued++
			if len(sampleIDs) < 3 {
				sampleIDs = append(sampleIDs, job.ID)
			}
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Anime ensured: %d\n", len(titles))
	fmt.Printf("  Jobs enqueued: %d\n", enqueued)
	fmt.Println()
	fmt.Println("  Sample job IDs:")
	for _, id := range sampleIDs {
		fmt.Printf("    %s\n", id)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  export JWT=$(go run ./cmd/token)")
	fmt.Println("  curl -s http://localhost:8080/jobs/stats -H \"Authorization: Bearer $JWT\"")
	fmt.Println("  curl -s http://localhost:8080/jobs/JOB_ID/attempts -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Enrichment jobs complete once Jikan answers; relations jobs add the")
	fmt.Println("  sequels and prequels of each title as new bare anime rows.")
}
