package breaker

import "sync"

// Registry holds one breaker per external dependency name. It is created
// once at daemon startup and queried/reset through these methods; breakers
// are never implicitly recreated mid-run.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates an empty registry. cfg is applied to breakers
// registered without an explicit config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

// Register creates and stores a breaker for the named dependency.
// Registering the same name twice returns the existing breaker.
func (r *Registry) Register(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.config)
	r.breakers[name] = b
	return b
}

// Get returns the breaker for name, or nil if none is registered.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Healthy reports the logical AND of the named breakers' health.
// With no names given, every registered breaker must be healthy.
func (r *Registry) Healthy(critical ...string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(critical) == 0 {
		for _, b := range r.breakers {
			if !b.Healthy() {
				return false
			}
		}
		return true
	}
	for _, name := range critical {
		b, ok := r.breakers[name]
		if !ok || !b.Healthy() {
			return false
		}
	}
	return true
}

// Stats returns a snapshot of every registered breaker.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	return out
}

// ForceReset resets the named breaker. Returns false if unknown.
func (r *Registry) ForceReset(name string) bool {
	r.mu.RLock()
	b := r.breakers[name]
	r.mu.RUnlock()
	if b == nil {
		return false
	}
	b.ForceReset()
	return true
}
