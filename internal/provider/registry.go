package provider

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const breakerThreshold = 3

// Registry holds the configured providers and tracks per-provider
// breaker state. Three consecutive failures open the breaker for the
// cooldown window, during which the provider is skipped.
type Registry struct {
	mu        sync.Mutex
	providers []Provider
	breakers  map[string]*breaker
	cooldown  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

type breaker struct {
	consecutiveFailures int
	openUntil           time.Time
}

// NewRegistry creates an empty registry with the given breaker cooldown.
func NewRegistry(cooldown time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*breaker),
		cooldown: cooldown,
		logger:   logger.With().Str("component", "provider-registry").Logger(),
		now:      time.Now,
	}
}

// Register adds a provider. Registration order is the fallback priority
// order when providers share a Priority value.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.breakers[p.Name()] = &breaker{}
}

// Available returns providers whose breaker is currently closed.
func (r *Registry) Available() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		b := r.breakers[p.Name()]
		if b.openUntil.After(now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// All returns every registered provider regardless of breaker state.
func (r *Registry) All() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Provider(nil), r.providers...)
}

// RecordSuccess closes the provider's breaker and resets its counter.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		b.consecutiveFailures = 0
		b.openUntil = time.Time{}
	}
}

// RecordFailure bumps the provider's failure counter; the third
// consecutive failure opens the breaker for the cooldown window.
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= breakerThreshold {
		b.openUntil = r.now().Add(r.cooldown)
		r.logger.Warn().
			Str("provider", name).
			Int("failures", b.consecutiveFailures).
			Time("open_until", b.openUntil).
			Msg("provider circuit breaker opened")
	}
}

// BreakerState reports a provider's breaker for the operations UI.
type BreakerState struct {
	Provider            string    `json:"provider"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Open                bool      `json:"open"`
	OpenUntil           time.Time `json:"openUntil,omitempty"`
}

// States returns the breaker state of every registered provider.
func (r *Registry) States() []BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]BreakerState, 0, len(r.providers))
	for _, p := range r.providers {
		b := r.breakers[p.Name()]
		out = append(out, BreakerState{
			Provider:            p.Name(),
			ConsecutiveFailures: b.consecutiveFailures,
			Open:                b.openUntil.After(now),
			OpenUntil:           b.openUntil,
		})
	}
	return out
}
