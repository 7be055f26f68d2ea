package breaker

import (
	"log/slog"
	"sync"
)

// Registry hands out one breaker per service name, creating them
// lazily with a shared config.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry using cfg for every new breaker.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger.With("component", "breaker"),
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for a service, creating it on first use.
func (r *Registry) For(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b = New(service, r.cfg)
	r.breakers[service] = b
	r.logger.Debug("created circuit breaker", "service", service)
	return b
}

// Snapshot returns stats for every known breaker.
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

// Reset closes the breaker for a service if it exists.
func (r *Registry) Reset(service string) bool {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	r.logger.Info("circuit breaker reset", "service", service)
	return true
}

// ForceOpen trips the breaker for a service, creating it if needed.
func (r *Registry) ForceOpen(service string) {
	r.For(service).ForceOpen()
	r.logger.Warn("circuit breaker forced open", "service", service)
}
