package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/scout/internal/storage"
)

func TestSQLiteBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "scout.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	records := []*storage.SearchRecord{
		{
			ID: "s1", Query: "1N4007", Identity: "10.0.0.1",
			Targets: []string{"https://www.chipdip.ru/product/1n4007", "https://www.chipdip.ru/search?searchtext=1N4007"},
			Found:   true, Target: "https://www.chipdip.ru/product/1n4007", Provider: "scraperapi",
			Attempts: 2, Warnings: 1, Duration: 1500 * time.Millisecond, CreatedAt: base.Add(-2 * time.Minute),
		},
		{
			ID: "s2", Query: "kt315", Identity: "10.0.0.2",
			Targets:  []string{"https://www.chipdip.ru/product/kt315"},
			Attempts: 3, Warnings: 4, Duration: 9 * time.Second, CreatedAt: base.Add(-time.Minute),
		},
		{
			ID: "s3", Query: "", Identity: "10.0.0.1", Targets: []string{},
			CreatedAt: base, Error: "empty_query",
		},
	}
	for _, rec := range records {
		if err := b.Save(ctx, rec); err != nil {
			t.Fatalf("Failed to save record %s: %v", rec.ID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s3" || all[2].ID != "s1" {
		t.Fatalf("expected newest first, got %d records", len(all))
	}

	got := all[2]
	if !got.Found || got.Provider != "scraperapi" || got.Attempts != 2 || got.Warnings != 1 {
		t.Errorf("unexpected record %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("expected duration 1.5s, got %v", got.Duration)
	}
	if len(got.Targets) != 2 || got.Targets[1] != "https://www.chipdip.ru/search?searchtext=1N4007" {
		t.Errorf("unexpected targets %v", got.Targets)
	}
	if !got.CreatedAt.Equal(base.Add(-2 * time.Minute)) {
		t.Errorf("expected created_at %v, got %v", base.Add(-2*time.Minute), got.CreatedAt)
	}
	if all[0].Error != "empty_query" {
		t.Errorf("expected error to round-trip, got %q", all[0].Error)
	}

	found := true
	res, err := b.Query(ctx, storage.Filter{Found: &found})
	if err != nil || len(res) != 1 || res[0].ID != "s1" {
		t.Errorf("found filter: %v, %d records", err, len(res))
	}

	res, err = b.Query(ctx, storage.Filter{Query: "kt315"})
	if err != nil || len(res) != 1 || res[0].ID != "s2" {
		t.Errorf("query filter: %v, %d records", err, len(res))
	}

	since := base.Add(-90 * time.Second)
	res, err = b.Query(ctx, storage.Filter{Since: &since})
	if err != nil || len(res) != 2 {
		t.Errorf("since filter: %v, %d records", err, len(res))
	}

	res, err = b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil || len(res) != 2 || res[0].ID != "s2" {
		t.Errorf("offset without limit: %v, %d records", err, len(res))
	}

	res, err = b.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil || len(res) != 1 || res[0].ID != "s2" {
		t.Errorf("limit+offset: %v, %d records", err, len(res))
	}
}
