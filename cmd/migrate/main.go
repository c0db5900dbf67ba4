// migrate applies the embedded schema migrations to DATABASE_URL.
// Run: go run ./cmd/migrate
package main

import (
	"log"
	"os"

	"github.com/ErlanBelekov/anime-sync/internal/infrastructure/postgres"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if err := postgres.Migrate(dbURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("schema is up to date")
}
