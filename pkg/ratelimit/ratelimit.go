package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	defaultMaxTokens = 10
	defaultRefill    = 1.0
	defaultIdleTTL   = 5 * time.Minute
)

// Config defines the token bucket shared by every key of a Limiter.
type Config struct {
	// MaxTokens is the bucket capacity (burst size).
	MaxTokens float64
	// RefillPerSecond is how many tokens are added back per second.
	RefillPerSecond float64
	// IdleTTL is how long a bucket may sit untouched before Sweep drops it.
	IdleTTL time.Duration
	// Now is the clock used for refills. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.RefillPerSecond <= 0 {
		c.RefillPerSecond = defaultRefill
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = defaultIdleTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is an in-memory token bucket keyed by caller identity. Buckets are
// created full on first use and refilled lazily on access; no background
// timer is needed except the optional janitor started with Run.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a new keyed limiter. Zero config values fall back to
// 10 tokens, 1 token per second and a 5 minute idle TTL.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		buckets: make(map[string]*bucket),
	}
}

// Allow refills the bucket for key and tries to consume one token.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.reserve(key)
	return ok
}

// Admit is Allow with the signature shared by every admission backend.
func (l *Limiter) Admit(_ context.Context, key string) bool {
	return l.Allow(key)
}

// Wait blocks until a token for key is available, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		ok, delay := l.reserve(key)
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve consumes a token if one is available. Otherwise it reports how long
// until the next token is due.
func (l *Limiter) reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.cfg.Now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.MaxTokens, lastRefill: now}
		l.buckets[key] = b
	}

	// lastRefill only moves forward, so no interval is refilled twice.
	if now.After(b.lastRefill) {
		elapsed := now.Sub(b.lastRefill).Seconds()
		b.tokens = math.Min(l.cfg.MaxTokens, b.tokens+elapsed*l.cfg.RefillPerSecond)
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	missing := 1 - b.tokens
	return false, time.Duration(missing / l.cfg.RefillPerSecond * float64(time.Second))
}

// tokens returns the current token count for key after a lazy refill,
// without consuming anything. Unknown keys report a full bucket.
func (l *Limiter) tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.cfg.Now()

	b, ok := l.buckets[key]
	if !ok {
		return l.cfg.MaxTokens
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return b.tokens
	}
	return math.Min(l.cfg.MaxTokens, b.tokens+elapsed*l.cfg.RefillPerSecond)
}

// Sweep drops buckets that have not been touched for IdleTTL and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.cfg.Now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if !b.lastRefill.After(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets every interval until ctx is canceled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = l.cfg.IdleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Sweep()
		}
	}
}
