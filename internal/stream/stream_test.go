package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEmitter_Framing(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, Config{})

	e.Open()
	e.Note(Note{Target: "https://www.chipdip.ru/product/1n4007"})
	e.Note(Note{Provider: "scraperapi"})
	e.Warn(Warn{Reason: "http_500", Code: "bad_status", Provider: "scraperapi"})
	e.Enrich(map[string]string{"title": "1N4007"})
	e.Tick()
	e.Done()

	want := "event: open\ndata: {}\n\n" +
		"event: note\ndata: {\"target\":\"https://www.chipdip.ru/product/1n4007\"}\n\n" +
		"event: note\ndata: {\"provider\":\"scraperapi\"}\n\n" +
		"event: warn\ndata: {\"reason\":\"http_500\",\"provider\":\"scraperapi\",\"code\":\"bad_status\"}\n\n" +
		"event: enrich\ndata: {\"title\":\"1N4007\"}\n\n" +
		"event: tick\ndata: {}\n\n" +
		"event: done\ndata: {}\n\n"
	if buf.String() != want {
		t.Errorf("unexpected stream:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestEmitter_OpenAndDoneExactlyOnce(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, Config{})

	e.Note(Note{Target: "before-open"})
	e.Done()
	if buf.Len() != 0 {
		t.Fatalf("expected nothing before open, got %q", buf.String())
	}

	e.Open()
	e.Open()
	e.Warn(Warn{Reason: "empty_query"})
	e.Done()
	e.Done()
	e.Note(Note{Target: "after-done"})
	e.Tick()

	events, err := Collect(&buf)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, string(ev.Kind))
	}
	if got := strings.Join(kinds, ","); got != "open,warn,done" {
		t.Errorf("unexpected event sequence %s", got)
	}
}

func TestEmitter_ResponseWriterHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	e := New(rec, Config{})
	e.Open()
	e.Done()

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("expected Cache-Control header")
	}
	if !rec.Flushed {
		t.Error("expected frames to be flushed")
	}
	if rec.Code != 200 {
		t.Errorf("unexpected status %d", rec.Code)
	}
}

type failingWriter struct {
	okWrites int
	writes   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.okWrites {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestEmitter_DropsAfterWriteFailure(t *testing.T) {
	w := &failingWriter{okWrites: 1}
	e := New(w, Config{})

	e.Open()
	if e.Broken() {
		t.Fatal("first write should succeed")
	}
	e.Note(Note{Target: "t"})
	if !e.Broken() {
		t.Fatal("expected emitter to be broken after a failed write")
	}
	e.Warn(Warn{Reason: "x"})
	e.Done()

	if w.writes != 2 {
		t.Errorf("expected no writes after the failure, got %d total", w.writes)
	}
}

func TestEmitter_Heartbeat(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, Config{})
	e.Open()
	e.StartHeartbeat(context.Background(), 10*time.Millisecond)
	e.StartHeartbeat(context.Background(), 10*time.Millisecond)

	time.Sleep(55 * time.Millisecond)
	e.Done()

	snapshot := buf.String()
	if n := strings.Count(snapshot, "event: tick"); n < 2 {
		t.Errorf("expected at least 2 ticks, got %d", n)
	}
	if !strings.HasSuffix(snapshot, "event: done\ndata: {}\n\n") {
		t.Errorf("expected done to be the last frame, got %q", snapshot)
	}

	time.Sleep(30 * time.Millisecond)
	if buf.String() != snapshot {
		t.Error("heartbeat kept writing after done")
	}
}

func TestEmitter_HeartbeatStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, Config{})
	e.Open()

	ctx, cancel := context.WithCancel(context.Background())
	e.StartHeartbeat(ctx, 5*time.Millisecond)
	cancel()
	e.stopHeartbeat()

	e.mu.Lock()
	before := buf.Len()
	e.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	e.mu.Lock()
	after := buf.Len()
	e.mu.Unlock()

	if before != after {
		t.Error("heartbeat kept ticking after cancellation")
	}
}

func TestEmitter_UnencodableEnrichIsDropped(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, Config{})
	e.Open()
	e.Enrich(make(chan int))
	e.Done()

	if strings.Contains(buf.String(), "enrich") {
		t.Errorf("expected enrich to be dropped, got %q", buf.String())
	}
	if e.Broken() {
		t.Error("an encoding error should not break the stream")
	}
}
