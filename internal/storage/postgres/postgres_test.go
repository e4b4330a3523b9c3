package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/scout/internal/storage"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if SCOUT_TEST_PG_DSN is set
	dsn := os.Getenv("SCOUT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: SCOUT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	rec := storage.NewRecord("pg-1N4007", "192.0.2.10")
	rec.Targets = []string{"https://www.chipdip.ru/product/pg-1n4007", "https://www.chipdip.ru/search?searchtext=pg-1N4007"}
	rec.Found = true
	rec.Target = rec.Targets[0]
	rec.Provider = "scrapingbee"
	rec.Attempts = 2
	rec.Warnings = 1
	rec.Duration = 2300 * time.Millisecond

	if err := b.Save(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{Query: "pg-1N4007", Limit: 10})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	// Can be more than 1 if tests run repeatedly, so look for ours
	var got *storage.SearchRecord
	for _, r := range results {
		if r.ID == rec.ID {
			got = r
		}
	}
	if got == nil {
		t.Fatalf("saved record %s not returned", rec.ID)
	}

	if got.Provider != rec.Provider || got.Attempts != 2 || got.Warnings != 1 || !got.Found {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Targets) != 2 || got.Targets[0] != rec.Targets[0] {
		t.Errorf("unexpected targets %v", got.Targets)
	}
	if got.Duration.Milliseconds() != rec.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", rec.Duration, got.Duration)
	}
	// Postgres keeps microseconds; seconds are safe to compare
	if got.CreatedAt.Unix() != rec.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", rec.CreatedAt, got.CreatedAt)
	}

	past := time.Now().Add(-time.Hour)
	found := true
	since, err := b.Query(ctx, storage.Filter{Query: "pg-1N4007", Found: &found, Since: &past})
	if err != nil {
		t.Fatalf("Failed to query with filters: %v", err)
	}
	if len(since) < 1 {
		t.Fatalf("Expected at least 1 result, got %d", len(since))
	}
}
