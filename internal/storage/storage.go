// Package storage defines the search audit log. Records describe how a
// search went (which target and provider won, how many attempts it took);
// they never carry parsed items, so the log is not a result cache.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchRecord is the audit entry for one search request.
type SearchRecord struct {
	ID        string        `json:"id"`
	Query     string        `json:"query"`
	Identity  string        `json:"identity"`
	Targets   []string      `json:"targets"`
	Found     bool          `json:"found"`
	Target    string        `json:"target,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	Attempts  int           `json:"attempts"`
	Warnings  int           `json:"warnings"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
	Error     string        `json:"error,omitempty"` // e.g. "canceled", "empty_query"
}

// NewRecord starts a record for query with a fresh ID.
func NewRecord(query, identity string) *SearchRecord {
	return &SearchRecord{
		ID:        uuid.NewString(),
		Query:     query,
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	Query  string
	Found  *bool
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend stores and queries search records. Query returns newest first.
type Backend interface {
	Save(ctx context.Context, rec *SearchRecord) error
	Query(ctx context.Context, filter Filter) ([]*SearchRecord, error)
	Close() error
}

// Match reports whether rec passes f. Backends without a query engine use it.
func (f Filter) Match(rec *SearchRecord) bool {
	if f.Query != "" && rec.Query != f.Query {
		return false
	}
	if f.Found != nil && rec.Found != *f.Found {
		return false
	}
	if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}
