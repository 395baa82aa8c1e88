package orchestrator

import (
	"sort"
	"sync"
)

// Registry holds every configured Adapter and, per request, narrows them to
// an ordered candidate list. Grounded on providers/provider.go's
// DefaultFallbackOrder plus proxy/failover.go's walk over that order,
// generalized into an explicit registered-component list instead of a
// package-level slice of provider name constants.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an adapter. Order of registration is the tie-breaker
// when two adapters share a Priority.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// All returns every registered adapter, in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Candidates returns adapters able to handle req, ordered by Priority
// (ascending — lower value tried first), then registration order, with
// local adapters deprioritized to the tail of the list regardless of their
// configured Priority (spec.md §4.7: remote providers are preferred over
// on-device inference whenever both can serve a request).
func (r *Registry) Candidates(req *Request) []Adapter {
	r.mu.RLock()
	pool := make([]Adapter, len(r.adapters))
	copy(pool, r.adapters)
	r.mu.RUnlock()

	candidates := make([]Adapter, 0, len(pool))
	for _, a := range pool {
		if a.CanHandle(req) {
			candidates = append(candidates, a)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].IsLocal(), candidates[j].IsLocal()
		if li != lj {
			return !li // remote (false) sorts before local (true)
		}
		return candidates[i].Priority() < candidates[j].Priority()
	})

	return candidates
}
