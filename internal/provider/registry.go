package provider

import (
	"sort"
	"sync"

	"github.com/WatchBeam/clock"
)

// Scorer ranks an available provider; higher is better. priority is the
// provider's static preference, 1 being most preferred.
type Scorer func(priority int, s Snapshot) float64

// DefaultScorer weights static priority by live success rate and halves the
// score of a provider that is only half-open.
func DefaultScorer(priority int, s Snapshot) float64 {
	if priority < 1 {
		priority = 1
	}
	score := s.SuccessRate / float64(priority)
	if !s.Healthy {
		score /= 2
	}
	return score
}

// Registry is the shared, concurrency-safe set of provider health trackers.
type Registry struct {
	clock clock.Clock

	mu        sync.RWMutex
	providers map[string]*Health
	scorer    Scorer
}

func NewRegistry(c clock.Clock) *Registry {
	if c == nil {
		c = clock.C
	}
	return &Registry{
		clock:     c,
		providers: make(map[string]*Health),
		scorer:    DefaultScorer,
	}
}

// Health returns the tracker for name, creating it on first use.
func (r *Registry) Health(name string) *Health {
	r.mu.RLock()
	h, ok := r.providers[name]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.providers[name]; ok {
		return h
	}
	h = NewHealth(name, r.clock)
	r.providers[name] = h
	return h
}

func (r *Registry) SetScorer(s Scorer) {
	r.mu.Lock()
	r.scorer = s
	r.mu.Unlock()
}

// Snapshots returns every tracked provider, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.providers))
	for _, h := range r.providers {
		out = append(out, h.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Candidate is a provider name with its static priority.
type Candidate struct {
	Name     string
	Priority int
}

// Rank drops unavailable candidates and orders the rest by score, best
// first. Ties keep the input order.
func (r *Registry) Rank(candidates []Candidate) []Candidate {
	r.mu.RLock()
	scorer := r.scorer
	r.mu.RUnlock()

	type scored struct {
		c     Candidate
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		h := r.Health(c.Name)
		if !h.IsAvailable() {
			continue
		}
		ranked = append(ranked, scored{c: c, score: scorer(c.Priority, h.Snapshot())})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]Candidate, len(ranked))
	for i, s := range ranked {
		out[i] = s.c
	}
	return out
}

// Availability reports, per tracked provider, whether a call may be
// attempted right now.
func (r *Registry) Availability() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.providers))
	for name, h := range r.providers {
		out[name] = h.IsAvailable()
	}
	return out
}
