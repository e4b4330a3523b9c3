package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/scout/internal/challenge"
	"github.com/FranksOps/scout/internal/fingerprint"
	"github.com/FranksOps/scout/internal/metrics"
	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/keypool"
	"github.com/FranksOps/scout/pkg/proxy"
	"github.com/FranksOps/scout/pkg/ratelimit"
	"github.com/FranksOps/scout/pkg/result"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// CodeRobots marks a target disallowed by the site's robots.txt.
const CodeRobots = "robots"

// DirectConfig configures the Direct provider.
type DirectConfig struct {
	Timeout     time.Duration
	Fingerprint fingerprint.Profile
	// Proxies, if set, are rotated per request and health-tracked.
	Proxies *proxy.Pool
	// UserAgents default to keypool.DefaultUserAgents.
	UserAgents *keypool.Pool
	// Pacer, if set, spaces out requests per target host.
	Pacer *ratelimit.Limiter
	// RespectRobots checks robots.txt before fetching.
	RespectRobots bool
	Detectors     []challenge.Detector
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// Direct fetches the target site itself with a browser-like TLS fingerprint,
// rotating User-Agents and, optionally, outbound proxies.
type Direct struct {
	cfg    DirectConfig
	client *httpclient.Client
	robots *robotsCache
	logger *slog.Logger
}

// NewDirect creates the Direct provider. A single client is kept for the
// provider's lifetime so connections and cookies are reused.
func NewDirect(cfg DirectConfig) (*Direct, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgents.Len() == 0 {
		cfg.UserAgents = keypool.UserAgents(nil)
	}
	if cfg.Detectors == nil {
		cfg.Detectors = challenge.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy for a request travels in its context so one transport can
	// serve every proxy in the pool.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.NewTransport(fingerprint.Config{
		Profile:            cfg.Fingerprint,
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("direct: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("direct: create client: %w", err)
	}

	logger := cfg.Logger.With("provider", NameDirect)
	d := &Direct{cfg: cfg, client: client, logger: logger}
	if cfg.RespectRobots {
		d.robots = newRobotsCache(client, logger)
	}
	return d, nil
}

// Name implements Provider.
func (d *Direct) Name() string { return NameDirect }

// Fetch implements Provider.
func (d *Direct) Fetch(ctx context.Context, t target.Target) result.Result[Payload] {
	u, err := url.Parse(t.URL)
	if err != nil || u.Host == "" {
		return result.Err[Payload](fmt.Sprintf("invalid target url %q", t.URL), CodeConfig)
	}

	ua := d.cfg.UserAgents.Next()

	if d.robots != nil && !d.robots.Allowed(ctx, u, ua) {
		return result.Err[Payload]("disallowed by robots.txt", CodeRobots)
	}

	if d.cfg.Pacer != nil {
		if err := d.cfg.Pacer.Wait(ctx, u.Host); err != nil {
			return FromError(ctx, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return result.Err[Payload](err.Error(), CodeConfig)
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")

	var activeProxy *url.URL
	if d.cfg.Proxies != nil {
		activeProxy = d.cfg.Proxies.Next()
	}
	reqCtx := ctx
	if activeProxy != nil {
		reqCtx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	resp, err := d.client.Fetch(reqCtx, req)
	if err != nil {
		// A canceled search says nothing about the proxy.
		if activeProxy != nil && ctx.Err() == nil {
			_ = d.cfg.Proxies.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		d.logger.Debug("fetch failed", "target", t.URL, "err", err)
		return FromError(ctx, err)
	}
	if activeProxy != nil {
		_ = d.cfg.Proxies.MarkSuccess(activeProxy)
	}

	page := challenge.Page{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
	if ok, source := challenge.Detect(page, d.cfg.Detectors); ok {
		d.logger.Debug("challenge page", "target", t.URL, "source", source, "status", resp.StatusCode)
		return result.Err[Payload]("challenge detected: "+source, CodeBlocked)
	}
	if !isSuccess(resp.StatusCode) {
		return FromStatus(resp.StatusCode)
	}

	return result.Ok(Payload{
		Provider:   NameDirect,
		URL:        t.URL,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Duration:   resp.Duration,
	})
}
