package stream

import (
	"strings"
	"testing"
)

func TestReadEvents(t *testing.T) {
	raw := ": keep-alive\n\n" +
		"event: open\ndata: {}\n\n" +
		"event: result\ndata: {\"title\":\n\"1N4007\"}\n\n" +
		"event: warn\ndata: {\"reason\":\"empty_query\"}\n\n" +
		"event: done\ndata: {}\n\n"

	events, err := Collect(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	if events[1].Kind != KindEnrich {
		t.Errorf("expected result alias to map to enrich, got %q", events[1].Kind)
	}

	var item struct{ Title string }
	if err := events[1].Decode(&item); err != nil || item.Title != "1N4007" {
		t.Errorf("unexpected decode %v %+v", err, item)
	}

	var w Warn
	if err := events[2].Decode(&w); err != nil || w.Reason != "empty_query" {
		t.Errorf("unexpected warn %v %+v", err, w)
	}
}

func TestReadEvents_Stop(t *testing.T) {
	raw := "event: open\ndata: {}\n\nevent: tick\ndata: {}\n\nevent: done\ndata: {}\n\n"
	var seen []Kind
	err := ReadEvents(strings.NewReader(raw), func(ev Event) bool {
		seen = append(seen, ev.Kind)
		return ev.Kind != KindTick
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("expected reading to stop at tick, got %v", seen)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Note(Note{Target: "t"})
	r.Warn(Warn{Reason: "no_providers_available", Target: "t"})
	r.Enrich(map[string]int{"n": 1})

	kinds := r.Kinds()
	if len(kinds) != 3 || kinds[0] != KindNote || kinds[1] != KindWarn || kinds[2] != KindEnrich {
		t.Errorf("unexpected kinds %v", kinds)
	}

	var w Warn
	if err := r.Events()[1].Decode(&w); err != nil || w.Reason != "no_providers_available" {
		t.Errorf("unexpected warn %+v", w)
	}
}
