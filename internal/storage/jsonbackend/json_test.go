package jsonbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/scout/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "searches.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	older := &storage.SearchRecord{
		ID: "json1", Query: "1N4007", Identity: "10.0.0.1",
		Targets: []string{"https://www.chipdip.ru/product/1n4007"},
		Found:   true, Provider: "direct", Attempts: 1,
		Duration: 800 * time.Millisecond, CreatedAt: now.Add(-2 * time.Hour),
	}
	newer := &storage.SearchRecord{
		ID: "json2", Query: "zzz", Identity: "10.0.0.2",
		Targets:  []string{"https://www.chipdip.ru/search?searchtext=zzz"},
		Attempts: 3, Warnings: 3, CreatedAt: now.Add(-time.Hour),
	}

	// saved out of order on purpose
	if err := b.Save(ctx, newer); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := b.Save(ctx, older); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 2 || all[0].ID != "json2" || all[1].ID != "json1" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[1].Duration != 800*time.Millisecond || !all[1].CreatedAt.Equal(older.CreatedAt) {
		t.Errorf("unexpected round trip %+v", all[1])
	}

	found := true
	res, err := b.Query(ctx, storage.Filter{Found: &found})
	if err != nil || len(res) != 1 || res[0].ID != "json1" {
		t.Errorf("found filter: %v %+v", err, res)
	}

	since := now.Add(-90 * time.Minute)
	res, err = b.Query(ctx, storage.Filter{Since: &since})
	if err != nil || len(res) != 1 || res[0].ID != "json2" {
		t.Errorf("since filter: %v %+v", err, res)
	}

	res, err = b.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil || len(res) != 1 || res[0].ID != "json1" {
		t.Errorf("limit/offset: %v %+v", err, res)
	}

	res, err = b.Query(ctx, storage.Filter{Offset: 5})
	if err != nil || len(res) != 0 {
		t.Errorf("offset past end: %v %+v", err, res)
	}

	// writes after a query still append
	if err := b.Save(ctx, storage.NewRecord("late", "10.0.0.3")); err != nil {
		t.Fatalf("Failed to save after query: %v", err)
	}
	raw, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if n := strings.Count(string(raw), "\n"); n != 3 {
		t.Errorf("expected 3 lines, got %d", n)
	}
}
