// Package stream writes search progress to a caller as server-sent events.
//
// Every frame has the form
//
//	event: <kind>
//	data: <json>
//
// followed by a blank line. A stream has exactly one open frame first and
// exactly one done frame last. Delivery is best-effort: once a write fails
// the emitter is marked broken and every later event is dropped, so a
// vanished client never stalls the search.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/FranksOps/scout/internal/metrics"
)

// Kind is the event name written on the "event:" line.
type Kind string

const (
	KindOpen   Kind = "open"
	KindNote   Kind = "note"
	KindWarn   Kind = "warn"
	KindEnrich Kind = "enrich"
	KindTick   Kind = "tick"
	KindDone   Kind = "done"
)

// KindResult is accepted by readers as an alias of KindEnrich.
const KindResult Kind = "result"

// DefaultHeartbeat is the tick interval used when none is configured.
const DefaultHeartbeat = 12 * time.Second

const defaultWriteTimeout = 5 * time.Second

// Note is a progress breadcrumb.
type Note struct {
	Target   string `json:"target,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Warn reports a recoverable failure.
type Warn struct {
	Reason   string `json:"reason,omitempty"`
	Target   string `json:"target,omitempty"`
	Provider string `json:"provider,omitempty"`
	Code     string `json:"code,omitempty"`
}

var empty = json.RawMessage(`{}`)

// Config configures an Emitter.
type Config struct {
	// WriteTimeout bounds each frame write when the writer is an
	// http.ResponseWriter. Defaults to 5s.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Emitter owns the outbound event stream of one request.
type Emitter struct {
	mu      sync.Mutex
	w       io.Writer
	rw      http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	logger  *slog.Logger

	opened bool
	closed bool
	broken bool

	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// New creates an Emitter writing to w. When w is an http.ResponseWriter the
// SSE headers are set on Open and every frame is flushed immediately.
func New(w io.Writer, cfg Config) *Emitter {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Emitter{w: w, timeout: cfg.WriteTimeout, logger: cfg.Logger}
	if rw, ok := w.(http.ResponseWriter); ok {
		e.rw = rw
		e.rc = http.NewResponseController(rw)
	}
	return e
}

// Open starts the stream. Calls after the first are ignored.
func (e *Emitter) Open() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opened {
		return
	}
	e.opened = true

	if e.rw != nil {
		h := e.rw.Header()
		h.Set("Content-Type", "text/event-stream; charset=utf-8")
		h.Set("Cache-Control", "no-cache, no-transform")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.rw.WriteHeader(http.StatusOK)
	}
	e.write(KindOpen, empty)
}

// Note emits a progress breadcrumb.
func (e *Emitter) Note(n Note) { e.emit(KindNote, n) }

// Warn emits a recoverable failure notice.
func (e *Emitter) Warn(w Warn) { e.emit(KindWarn, w) }

// Enrich emits a parsed result.
func (e *Emitter) Enrich(v any) { e.emit(KindEnrich, v) }

// Tick emits a heartbeat.
func (e *Emitter) Tick() { e.emit(KindTick, nil) }

// Done stops the heartbeat and writes the terminal frame. Calls after the
// first are ignored.
func (e *Emitter) Done() {
	e.stopHeartbeat()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened || e.closed {
		return
	}
	e.write(KindDone, empty)
	e.closed = true
}

// Broken reports whether a write has failed.
func (e *Emitter) Broken() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.broken
}

// StartHeartbeat emits a tick every interval until Done is called or ctx is
// canceled. Only one heartbeat runs per emitter.
func (e *Emitter) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}

	e.mu.Lock()
	if e.hbCancel != nil || e.closed {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.hbCancel = cancel
	e.hbDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Tick()
			}
		}
	}()
}

func (e *Emitter) stopHeartbeat() {
	e.mu.Lock()
	cancel, done := e.hbCancel, e.hbDone
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Emitter) emit(kind Kind, v any) {
	data := empty
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			e.logger.Error("stream: encode event", "kind", kind, "err", err)
			return
		}
		data = b
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.opened || e.closed {
		return
	}
	e.write(kind, data)
}

// write frames one event. e.mu must be held.
func (e *Emitter) write(kind Kind, data []byte) {
	if e.broken {
		metrics.StreamDroppedTotal.Inc()
		return
	}

	if e.rc != nil {
		if err := e.rc.SetWriteDeadline(time.Now().Add(e.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			e.fail(kind, err)
			return
		}
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		e.fail(kind, err)
		return
	}

	if e.rc != nil {
		if err := e.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			e.fail(kind, err)
			return
		}
	}
	metrics.StreamEventsTotal.WithLabelValues(string(kind)).Inc()
}

func (e *Emitter) fail(kind Kind, err error) {
	e.broken = true
	metrics.StreamDroppedTotal.Inc()
	e.logger.Debug("stream: write failed, dropping further events", "kind", kind, "err", err)
}
