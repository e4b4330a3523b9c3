package storage

import (
	"testing"
	"time"
)

func TestNewRecord(t *testing.T) {
	a := NewRecord("1N4007", "10.0.0.1")
	b := NewRecord("1N4007", "10.0.0.1")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() || a.CreatedAt.Location() != time.UTC {
		t.Errorf("expected UTC creation time, got %v", a.CreatedAt)
	}
}

func TestFilter_Match(t *testing.T) {
	now := time.Now().UTC()
	rec := &SearchRecord{Query: "KT315", Found: true, CreatedAt: now}

	yes, no := true, false
	earlier, later := now.Add(-time.Minute), now.Add(time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"query match", Filter{Query: "KT315"}, true},
		{"query mismatch", Filter{Query: "BC547"}, false},
		{"found", Filter{Found: &yes}, true},
		{"not found", Filter{Found: &no}, false},
		{"since earlier", Filter{Since: &earlier}, true},
		{"since later", Filter{Since: &later}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(rec); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
