// Package provider wraps the third-party anime APIs behind one interface and
// carries the resilience layer every call goes through: per-provider circuit
// breakers (Health, Registry), an adaptive retry policy that honours server
// rate-limit hints (RetryPolicy), and a throttled HTTP client (Client).
package provider

import (
	"context"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
)

// Entity is one title as a provider reports it.
type Entity struct {
	ExternalID string
	Title      string
	Synopsis   string
	Episodes   *int
	Status     string
	Score      *float64 // normalised to 0-10
}

// RelatedEntity is an edge to another title in the provider's graph.
type RelatedEntity struct {
	ExternalID string
	Title      string
	Kind       domain.RelationKind
}

type Provider interface {
	// Name is the provider code stored alongside external ids.
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Entity, error)
	// GetByID returns (nil, nil) when the provider has no such title.
	GetByID(ctx context.Context, externalID string) (*Entity, error)
}

// RelationProvider is implemented by providers that expose a relation graph.
type RelationProvider interface {
	Provider
	GetRelations(ctx context.Context, externalID string) ([]RelatedEntity, error)
}
