package provider

import (
	"sync"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
)

// Selector orders the configured providers for a call by blending their
// static priority with live health from the Registry.
type Selector struct {
	registry *Registry

	mu        sync.RWMutex
	providers map[string]Provider
	order     []Candidate
}

func NewSelector(registry *Registry) *Selector {
	return &Selector{
		registry:  registry,
		providers: make(map[string]Provider),
	}
}

// Register adds p with a static priority (1 is most preferred).
func (s *Selector) Register(p Provider, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.Name()]; !ok {
		s.order = append(s.order, Candidate{Name: p.Name(), Priority: priority})
	}
	s.providers[p.Name()] = p
}

func (s *Selector) Registry() *Registry { return s.registry }

// Ranked returns the available providers, best first. Providers with an
// open circuit that is not yet due for a trial call are left out.
func (s *Selector) Ranked() []Provider {
	s.mu.RLock()
	candidates := append([]Candidate(nil), s.order...)
	s.mu.RUnlock()

	ranked := s.registry.Rank(candidates)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Provider, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, s.providers[c.Name])
	}
	return out
}

// RelationProvider returns the best-ranked available provider that can
// serve relations.
func (s *Selector) RelationProvider() (RelationProvider, error) {
	for _, p := range s.Ranked() {
		if rp, ok := p.(RelationProvider); ok {
			return rp, nil
		}
	}
	return nil, domain.ErrNoProviders
}
