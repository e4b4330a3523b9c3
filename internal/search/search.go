// Package search runs a query's targets against the usable providers and
// reports progress to a Sink.
//
// Targets are tried in order and providers one at a time in priority order.
// The first provider that returns a page wins its target; the first target
// whose page parses ends the search. Nothing here returns an error: every
// failure becomes a warn event and a health record, and "nothing found" is
// a normal outcome.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/scout/internal/metrics"
	"github.com/FranksOps/scout/internal/parser"
	"github.com/FranksOps/scout/internal/provider"
	"github.com/FranksOps/scout/internal/rotator"
	"github.com/FranksOps/scout/internal/stream"
	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/result"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 10 * time.Second

// ReasonNoProviders is the warn reason when every provider is cooling down.
const ReasonNoProviders = "no_providers_available"

// Sink receives progress events. *stream.Emitter and *stream.Recorder
// implement it.
type Sink interface {
	Note(stream.Note)
	Warn(stream.Warn)
	Enrich(any)
}

// Config configures an Executor.
type Config struct {
	ProviderTimeout time.Duration
	Logger          *slog.Logger
}

// Outcome summarizes one Run.
type Outcome struct {
	Found bool
	// Target and Provider identify the winning fetch when Found.
	Target   string
	Provider string
	// Attempts counts provider calls; Warnings counts warn events.
	Attempts int
	Warnings int
	// Canceled is set when the caller went away mid-search.
	Canceled bool
}

// Executor runs searches. It is safe for concurrent use; all shared state
// lives in the Rotator.
type Executor struct {
	rotator *rotator.Rotator
	parsers parser.Set
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Executor.
func New(cfg Config, r *rotator.Rotator, parsers parser.Set) *Executor {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		rotator: r,
		parsers: parsers,
		timeout: cfg.ProviderTimeout,
		logger:  cfg.Logger,
	}
}

// Run tries targets in order until one yields a parsed document. If ctx is
// canceled, Run stops at the next provider call or parse without recording
// health or emitting anything further.
func (x *Executor) Run(ctx context.Context, targets []target.Target, sink Sink) Outcome {
	var out Outcome

	warn := func(w stream.Warn) {
		out.Warnings++
		sink.Warn(w)
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			out.Canceled = true
			return out
		}
		sink.Note(stream.Note{Target: t.URL})

		providers := x.rotator.Usable()
		if len(providers) == 0 {
			x.logger.Info("no usable providers", "target", t.URL)
			warn(stream.Warn{Reason: ReasonNoProviders, Target: t.URL})
			continue
		}

		var (
			payload provider.Payload
			fetched bool
		)
		for _, p := range providers {
			sink.Note(stream.Note{Provider: p.Name()})

			start := time.Now()
			res := x.fetch(ctx, p, t)
			out.Attempts++

			if ctx.Err() != nil {
				out.Canceled = true
				return out
			}

			if v, ok := res.Value(); ok {
				x.rotator.RecordSuccess(p.Name())
				metrics.RecordFetch(p.Name(), true, "", time.Since(start))
				x.logger.Debug("provider fetched", "provider", p.Name(), "target", t.URL, "status", v.StatusCode)
				payload, fetched = v, true
				break
			}

			f := res.Failure()
			x.rotator.RecordFailure(p.Name())
			metrics.RecordFetch(p.Name(), false, f.Code, time.Since(start))
			x.logger.Info("provider failed", "provider", p.Name(), "target", t.URL, "reason", f.Reason, "code", f.Code)
			warn(stream.Warn{Provider: p.Name(), Reason: f.Reason, Code: f.Code, Target: t.URL})
		}
		if !fetched {
			continue
		}

		doc := x.parse(t, payload)
		if ctx.Err() != nil {
			out.Canceled = true
			return out
		}

		d, ok := doc.Value()
		if !ok {
			f := doc.Failure()
			x.logger.Info("parse failed", "target", t.URL, "provider", payload.Provider, "reason", f.Reason, "code", f.Code)
			warn(stream.Warn{Target: t.URL, Reason: f.Reason, Code: f.Code})
			continue
		}

		sink.Enrich(d)
		out.Found = true
		out.Target = t.URL
		out.Provider = payload.Provider
		break
	}

	metrics.RecordSearch(out.Found)
	return out
}

// fetch calls p with a bounded deadline. A provider that ignores its context
// is abandoned when the deadline passes; its late result is discarded.
func (x *Executor) fetch(ctx context.Context, p provider.Provider, t target.Target) result.Result[provider.Payload] {
	callCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	ch := make(chan result.Result[provider.Payload], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				x.logger.Error("provider panicked", "provider", p.Name(), "panic", r)
				ch <- result.Err[provider.Payload](fmt.Sprintf("provider panic: %v", r), provider.CodeTransport)
			}
		}()
		ch <- p.Fetch(callCtx, t)
	}()

	select {
	case res := <-ch:
		return res
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return result.Err[provider.Payload]("request canceled", provider.CodeCanceled)
		}
		return result.Err[provider.Payload](fmt.Sprintf("no response within %s", x.timeout), provider.CodeTimeout)
	}
}

func (x *Executor) parse(t target.Target, payload provider.Payload) result.Result[parser.Document] {
	p, ok := x.parsers.For(t.Kind)
	if !ok {
		return result.Err[parser.Document](fmt.Sprintf("no parser for %q targets", t.Kind), parser.CodeParse)
	}
	source := payload.URL
	if source == "" {
		source = t.URL
	}
	return p.Parse(payload.Body, source)
}
