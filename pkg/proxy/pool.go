package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when marking a proxy that is not in the pool.
var ErrUnknownProxy = errors.New("proxy not found in pool")

// Status is a point-in-time view of one proxy, safe to serialize.
type Status struct {
	URL           string    `json:"url"`
	Failures      int       `json:"failures"`
	Successes     int       `json:"successes"`
	LastUsed      time.Time `json:"last_used,omitempty"`
	DisabledUntil time.Time `json:"disabled_until,omitempty"`
	Available     bool      `json:"available"`
}

type entry struct {
	url           *url.URL
	key           string
	failures      int
	successes     int
	lastUsed      time.Time
	disabledUntil time.Time
}

// Pool rotates outbound proxies round-robin, benching a proxy for Cooldown
// once it accumulates MaxFailures.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a proxy remains disabled after hitting MaxFailures.
	Cooldown time.Duration
	// Now is the pool clock. Defaults to time.Now.
	Now func() time.Time
}

// NewPool creates a new proxy pool. If config values are zero, reasonable defaults are used.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
}

// LoadFile reads proxies from a file, one URL per line.
// Lines starting with '#' and empty lines are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer file.Close()

	var raw []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}

	return p.Add(raw...)
}

// Add parses raw proxy URLs and appends them to the pool. A missing scheme
// defaults to http. Duplicates are ignored.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		parsed = append(parsed, u)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, u := range parsed {
		if p.find(u) != nil {
			continue
		}
		p.entries = append(p.entries, &entry{url: u, key: u.String()})
	}
	return nil
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next available proxy, or nil when the pool is empty or
// every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return nil
	}

	now := p.now()
	for i := 0; i < n; i++ {
		e := p.entries[p.next]
		p.next = (p.next + 1) % n

		if !e.disabledUntil.IsZero() {
			if now.Before(e.disabledUntil) {
				continue
			}
			// revived after cooldown
			e.disabledUntil = time.Time{}
			e.failures = 0
		}

		e.lastUsed = now
		return e.url
	}
	return nil
}

// MarkSuccess records a successful request through proxyURL and forgives one failure.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New("proxy url cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(proxyURL)
	if e == nil {
		return ErrUnknownProxy
	}
	e.successes++
	if e.failures > 0 {
		e.failures--
	}
	return nil
}

// MarkFailure records a failure through proxyURL, benching it once failures
// reach the configured maximum.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New("proxy url cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(proxyURL)
	if e == nil {
		return ErrUnknownProxy
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.disabledUntil = p.now().Add(p.cooldown)
	}
	return nil
}

// Snapshot returns the status of every proxy in pool order.
func (p *Pool) Snapshot() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]Status, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, Status{
			URL:           redact(e.url),
			Failures:      e.failures,
			Successes:     e.successes,
			LastUsed:      e.lastUsed,
			DisabledUntil: e.disabledUntil,
			Available:     e.disabledUntil.IsZero() || !now.Before(e.disabledUntil),
		})
	}
	return out
}

// find locates a proxy by its string form. Must be called with lock held.
func (p *Pool) find(u *url.URL) *entry {
	key := u.String()
	for _, e := range p.entries {
		if e.key == key {
			return e
		}
	}
	return nil
}

// redact hides proxy credentials.
func redact(u *url.URL) string {
	return u.Redacted()
}
