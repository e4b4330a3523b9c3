package keypool

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// DefaultUserAgents is a realistic set of modern desktop browser User-Agents.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
}

// Pool holds interchangeable values such as API keys for one provider or
// User-Agent strings. Values are fungible, so Pick chooses uniformly at
// random rather than by priority.
type Pool struct {
	values  []string
	counter atomic.Uint64
}

// New creates a pool from values, dropping blanks and surrounding whitespace.
// The input slice is copied.
func New(values ...string) *Pool {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return &Pool{values: cleaned}
}

// UserAgents returns a pool seeded with uas, or DefaultUserAgents when uas is empty.
func UserAgents(uas []string) *Pool {
	p := New(uas...)
	if p.Len() == 0 {
		return New(DefaultUserAgents...)
	}
	return p
}

// Len returns the number of values in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// Pick returns a uniformly random value using crypto/rand, or "" for an empty pool.
// It is safe for concurrent use.
func (p *Pool) Pick() string {
	if p.Len() == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.values))))
	if err != nil {
		return p.Next()
	}
	return p.values[n.Int64()]
}

// Next returns values in round-robin order, or "" for an empty pool.
// It is safe for concurrent use.
func (p *Pool) Next() string {
	if p.Len() == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.values[idx%uint64(len(p.values))]
}

// Mask shortens a secret for logs and events, keeping the first 6 characters.
func Mask(secret string) string {
	if len(secret) <= 6 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:6] + "..."
}
