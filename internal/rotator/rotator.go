// Package rotator keeps per-provider health and decides which providers are
// usable right now.
//
// The breaker is cooldown-only: a failure benches the provider for the
// cooldown window, after which it is simply eligible again and its next real
// call decides. There is no separate half-open probe state.
package rotator

import (
	"sync"
	"time"

	"github.com/FranksOps/scout/internal/provider"
)

// DefaultCooldown is how long a provider is skipped after a failure.
const DefaultCooldown = 15 * time.Minute

// Config defines settings for the Rotator.
type Config struct {
	Cooldown time.Duration
	// Now is the rotator clock. Defaults to time.Now.
	Now func() time.Time
}

// State is the health record of one provider.
type State struct {
	Name                string    `json:"name"`
	Priority            int       `json:"priority"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	TotalOK             int64     `json:"total_ok"`
	TotalFail           int64     `json:"total_fail"`
	// Available and CooldownUntil are computed by Snapshot.
	Available     bool       `json:"available"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

type slot struct {
	provider provider.Provider
	state    State
}

// Rotator is a registry of providers in priority order with health
// bookkeeping. It is safe for concurrent use; a read of Usable followed by
// a Record call is not atomic across requests, which is acceptable because
// health is advisory.
type Rotator struct {
	mu       sync.Mutex
	slots    []*slot
	byName   map[string]*slot
	cooldown time.Duration
	now      func() time.Time
}

// New registers providers; their order is their priority (first = highest).
// Providers with a duplicate name are ignored.
func New(cfg Config, providers ...provider.Provider) *Rotator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Rotator{
		byName:   make(map[string]*slot, len(providers)),
		cooldown: cfg.Cooldown,
		now:      cfg.Now,
	}
	for _, p := range providers {
		if _, dup := r.byName[p.Name()]; dup {
			continue
		}
		s := &slot{
			provider: p,
			state:    State{Name: p.Name(), Priority: len(r.slots)},
		}
		r.slots = append(r.slots, s)
		r.byName[p.Name()] = s
	}
	return r
}

// Cooldown returns the configured cooldown window.
func (r *Rotator) Cooldown() time.Duration { return r.cooldown }

// Len returns the number of registered providers.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Usable returns the providers outside their cooldown window, in priority
// order. Providers that never failed are always usable. The result is empty
// when every provider is cooling down.
func (r *Rotator) Usable() []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	usable := make([]provider.Provider, 0, len(r.slots))
	for _, s := range r.slots {
		if r.available(s.state, now) {
			usable = append(usable, s.provider)
		}
	}
	return usable
}

// RecordSuccess counts a successful fetch. It leaves the consecutive failure
// count alone; being past the cooldown is what makes a provider usable.
func (r *Rotator) RecordSuccess(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[name]
	if !ok {
		return false
	}
	s.state.TotalOK++
	return true
}

// RecordFailure counts a failed fetch and starts the provider's cooldown.
func (r *Rotator) RecordFailure(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byName[name]
	if !ok {
		return false
	}
	s.state.TotalFail++
	s.state.ConsecutiveFailures++
	s.state.LastFailure = r.now()
	return true
}

// State returns the health record for name.
func (r *Rotator) State(name string) (State, bool) {
	snap := r.Snapshot()
	for _, st := range snap {
		if st.Name == name {
			return st, true
		}
	}
	return State{}, false
}

// Snapshot returns a copy of every provider's state in priority order.
func (r *Rotator) Snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]State, 0, len(r.slots))
	for _, s := range r.slots {
		st := s.state
		st.Available = r.available(st, now)
		if !st.Available {
			until := st.LastFailure.Add(r.cooldown)
			st.CooldownUntil = &until
		}
		out = append(out, st)
	}
	return out
}

func (r *Rotator) available(st State, now time.Time) bool {
	if st.LastFailure.IsZero() {
		return true
	}
	return now.Sub(st.LastFailure) >= r.cooldown
}
