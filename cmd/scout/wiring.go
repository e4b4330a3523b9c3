package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FranksOps/scout/internal/config"
	"github.com/FranksOps/scout/internal/fingerprint"
	"github.com/FranksOps/scout/internal/parser"
	"github.com/FranksOps/scout/internal/provider"
	"github.com/FranksOps/scout/internal/rotator"
	"github.com/FranksOps/scout/internal/search"
	"github.com/FranksOps/scout/internal/server"
	"github.com/FranksOps/scout/internal/storage"
	"github.com/FranksOps/scout/internal/storage/jsonbackend"
	"github.com/FranksOps/scout/internal/storage/postgres"
	"github.com/FranksOps/scout/internal/storage/sqlite"
	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/proxy"
	"github.com/FranksOps/scout/pkg/ratelimit"
)

// buildProviders creates the providers named in cfg.Order, in that order.
// API providers without keys and a disabled direct provider are skipped.
// Adapter timeouts are clamped to callTimeout so an abandoned call never
// outlives the executor's deadline.
func buildProviders(cfg config.ProvidersConfig, callTimeout time.Duration, logger *slog.Logger) ([]provider.Provider, error) {
	cfg.ScraperAPI.Timeout = clampTimeout(cfg.ScraperAPI.Timeout, callTimeout)
	cfg.ScrapingBee.Timeout = clampTimeout(cfg.ScrapingBee.Timeout, callTimeout)
	cfg.ScrapingBot.Timeout = clampTimeout(cfg.ScrapingBot.Timeout, callTimeout)
	cfg.Direct.Timeout = clampTimeout(cfg.Direct.Timeout, callTimeout)

	var out []provider.Provider
	for _, name := range cfg.Order {
		var (
			p   provider.Provider
			err error
		)
		switch name {
		case provider.NameScraperAPI:
			if len(cfg.ScraperAPI.Keys) == 0 {
				logger.Warn("provider skipped, no api keys", "provider", name)
				continue
			}
			p, err = provider.NewScraperAPI(apiConfig(cfg.ScraperAPI, logger))
		case provider.NameScrapingBee:
			if len(cfg.ScrapingBee.Keys) == 0 {
				logger.Warn("provider skipped, no api keys", "provider", name)
				continue
			}
			p, err = provider.NewScrapingBee(apiConfig(cfg.ScrapingBee, logger))
		case provider.NameScrapingBot:
			if len(cfg.ScrapingBot.Keys) == 0 {
				logger.Warn("provider skipped, no api keys", "provider", name)
				continue
			}
			p, err = provider.NewScrapingBot(apiConfig(cfg.ScrapingBot, logger))
		case provider.NameDirect:
			if !cfg.Direct.Enabled {
				continue
			}
			p, err = newDirect(cfg.Direct, logger)
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			return nil, err
		}
		logger.Info("provider registered", "provider", name, "priority", len(out))
		out = append(out, p)
	}
	return out, nil
}

func clampTimeout(d, limit time.Duration) time.Duration {
	if limit > 0 && (d <= 0 || d > limit) {
		return limit
	}
	return d
}

func apiConfig(c config.APIProvider, logger *slog.Logger) provider.APIConfig {
	return provider.APIConfig{
		Endpoint: c.Endpoint,
		Keys:     c.Keys,
		Timeout:  c.Timeout,
		Logger:   logger,
	}
}

func newDirect(c config.DirectProvider, logger *slog.Logger) (*provider.Direct, error) {
	profile, err := fingerprint.ParseProfile(c.Fingerprint)
	if err != nil {
		return nil, err
	}

	dc := provider.DirectConfig{
		Timeout:       c.Timeout,
		Fingerprint:   profile,
		RespectRobots: c.RespectRobots,
		Logger:        logger,
	}

	if len(c.Proxies) > 0 || c.ProxyFile != "" {
		pool := proxy.NewPool(proxy.Config{})
		if err := pool.Add(c.Proxies...); err != nil {
			return nil, fmt.Errorf("direct: %w", err)
		}
		if c.ProxyFile != "" {
			if err := pool.LoadFile(c.ProxyFile); err != nil {
				return nil, fmt.Errorf("direct: %w", err)
			}
		}
		logger.Info("direct provider proxies loaded", "count", pool.Len())
		dc.Proxies = pool
	}

	if c.RPS > 0 {
		dc.Pacer = ratelimit.NewLimiter(ratelimit.Config{MaxTokens: 1, RefillPerSecond: c.RPS})
	}

	return provider.NewDirect(dc)
}

// buildPipeline wires the rotator and executor from cfg.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*rotator.Rotator, *search.Executor, error) {
	providers, err := buildProviders(cfg.Providers, cfg.Search.ProviderTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	if len(providers) == 0 {
		logger.Warn("no providers registered, every search will report no_providers_available")
	}

	rot := rotator.New(rotator.Config{Cooldown: cfg.Search.Cooldown}, providers...)
	exec := search.New(search.Config{
		ProviderTimeout: cfg.Search.ProviderTimeout,
		Logger:          logger,
	}, rot, parser.Default(cfg.Search.BaseURL))
	return rot, exec, nil
}

// openBackend opens the audit log backend. kind "" returns a nil Backend.
func openBackend(ctx context.Context, kind, dsn string) (storage.Backend, error) {
	switch kind {
	case "":
		return nil, nil
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	case "json":
		return jsonbackend.New(dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// janitor sweeps idle admission buckets in the background.
type janitor interface {
	Run(ctx context.Context, interval time.Duration) error
}

// buildAdmitter returns the admission controller for cfg. The janitor is nil
// for the Redis limiter, whose keys expire on their own.
func buildAdmitter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (server.Admitter, janitor, func() error, error) {
	rl := ratelimit.Config{
		MaxTokens:       cfg.MaxTokens,
		RefillPerSecond: cfg.RefillPerSecond,
		IdleTTL:         cfg.IdleTTL,
	}

	if cfg.RedisURL == "" {
		l := ratelimit.NewLimiter(rl)
		return l, l, func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// Admission fails open, so an unreachable Redis only degrades limiting.
		logger.Warn("redis unreachable at startup", "err", err)
	}
	return ratelimit.NewRedisLimiter(client, rl, logger), nil, client.Close, nil
}

func newBuilder(cfg *config.Config) target.Builder {
	return target.NewBuilder(cfg.Search.BaseURL)
}
