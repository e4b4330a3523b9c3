// Package server exposes the live search stream and operational endpoints
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/scout/internal/metrics"
	"github.com/FranksOps/scout/internal/rotator"
	"github.com/FranksOps/scout/internal/search"
	"github.com/FranksOps/scout/internal/storage"
	"github.com/FranksOps/scout/internal/stream"
	"github.com/FranksOps/scout/internal/target"
)

// ReasonEmptyQuery is the warn reason for a blank q parameter.
const ReasonEmptyQuery = "empty_query"

const (
	defaultAddr           = ":8080"
	defaultRequestTimeout = 60 * time.Second
	saveTimeout           = 5 * time.Second
)

// Admitter decides whether a caller may start a search.
// *ratelimit.Limiter and *ratelimit.RedisLimiter implement it.
type Admitter interface {
	Admit(ctx context.Context, key string) bool
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// TrustForwarded takes the caller identity from the first
	// X-Forwarded-For hop instead of the socket address.
	TrustForwarded bool
	// RequestTimeout bounds a whole search, provider calls included.
	RequestTimeout time.Duration
	// Heartbeat is the tick interval of the event stream.
	Heartbeat time.Duration
	// WriteTimeout bounds each event write.
	WriteTimeout time.Duration
	// RetryAfter is advertised to rejected callers.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

// Deps are the collaborators a Server serves requests with.
type Deps struct {
	Builder  target.Builder
	Executor *search.Executor
	Rotator  *rotator.Rotator
	// Admitter and Store are optional.
	Admitter Admitter
	Store    storage.Backend
}

// Server is the scout HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	srv    *http.Server
}

// New creates a Server.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = stream.DefaultHeartbeat
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, deps: deps, logger: cfg.Logger}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: streams outlive any fixed limit. Each event write
		// carries its own deadline instead.
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/live/search", s.handleLiveSearch)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return withLogging(s.logger, withRecovery(s.logger, mux))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleLiveSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	identity := s.identity(r)

	if s.deps.Admitter != nil && !s.deps.Admitter.Admit(r.Context(), identity) {
		s.reject(w, identity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	rec := storage.NewRecord(query, identity)

	em := stream.New(w, stream.Config{WriteTimeout: s.cfg.WriteTimeout, Logger: s.logger})
	em.Open()

	if query == "" {
		em.Warn(stream.Warn{Reason: ReasonEmptyQuery})
		em.Done()
		rec.Error = ReasonEmptyQuery
		rec.Targets = []string{}
		s.save(ctx, rec, start)
		return
	}

	em.StartHeartbeat(ctx, s.cfg.Heartbeat)

	targets := s.deps.Builder.Build(query)
	rec.Targets = make([]string, len(targets))
	for i, t := range targets {
		rec.Targets[i] = t.URL
	}

	out := s.deps.Executor.Run(ctx, targets, em)
	em.Done()

	rec.Found = out.Found
	rec.Target = out.Target
	rec.Provider = out.Provider
	rec.Attempts = out.Attempts
	rec.Warnings = out.Warnings
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rec.Error = "timeout"
	case out.Canceled:
		rec.Error = "canceled"
	}

	s.logger.Info("search finished",
		"query", query,
		"identity", identity,
		"found", out.Found,
		"provider", out.Provider,
		"attempts", out.Attempts,
		"warnings", out.Warnings,
		"canceled", out.Canceled,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.save(ctx, rec, start)
}

type rejection struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

func (s *Server) reject(w http.ResponseWriter, identity string) {
	metrics.AdmissionRejectedTotal.Inc()
	s.logger.Info("search rejected", "identity", identity)

	retry := int(math.Ceil(s.cfg.RetryAfter.Seconds()))
	w.Header().Set("Retry-After", fmt.Sprint(retry))
	writeJSON(w, http.StatusTooManyRequests, rejection{OK: false, Error: "rate_limit", RetryAfter: retry})
}

// save writes the audit record on a context detached from the request, so a
// caller that hung up still gets logged.
func (s *Server) save(ctx context.Context, rec *storage.SearchRecord, start time.Time) {
	if s.deps.Store == nil {
		return
	}
	rec.Duration = time.Since(start)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.deps.Store.Save(saveCtx, rec); err != nil {
		s.logger.Error("save search record", "id", rec.ID, "err", err)
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cooldown_seconds": s.deps.Rotator.Cooldown().Seconds(),
		"providers":        s.deps.Rotator.Snapshot(),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity names the caller for admission control.
func (s *Server) identity(r *http.Request) string {
	if s.cfg.TrustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
