package breaker

import "sync"

// Registry lazily creates one Breaker per canonical model key.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns or creates the breaker for key.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[key]; ok {
		return b
	}
	b = New(key, r.cfg)
	r.breakers[key] = b
	return b
}

// FilterAvailable returns the subset of keys whose breaker IsAvailable. When
// none are available, the router is expected to fall back to the full list
// (degraded admission) rather than call this again.
func (r *Registry) FilterAvailable(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if r.Get(k).IsAvailable() {
			out = append(out, k)
		}
	}
	return out
}
