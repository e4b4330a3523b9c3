package stream

import (
	"encoding/json"
	"sync"
)

// Recorder collects note, warn and enrich events in memory. It satisfies
// the same progress interface as Emitter and is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Note records a note event.
func (r *Recorder) Note(n Note) { r.add(KindNote, n) }

// Warn records a warn event.
func (r *Recorder) Warn(w Warn) { r.add(KindWarn, w) }

// Enrich records an enrich event.
func (r *Recorder) Enrich(v any) { r.add(KindEnrich, v) }

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in emission order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *Recorder) add(kind Kind, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = empty
	}
	r.mu.Lock()
	r.events = append(r.events, Event{Kind: kind, Data: data})
	r.mu.Unlock()
}
