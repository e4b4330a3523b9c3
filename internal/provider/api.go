package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/scout/internal/challenge"
	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/FranksOps/scout/pkg/keypool"
	"github.com/FranksOps/scout/pkg/result"
)

// Provider names as used in configuration, events and metrics.
const (
	NameScraperAPI  = "scraperapi"
	NameScrapingBee = "scrapingbee"
	NameScrapingBot = "scrapingbot"
	NameDirect      = "direct"
)

// Default upstream endpoints.
const (
	DefaultScraperAPIEndpoint  = "http://api.scraperapi.com"
	DefaultScrapingBeeEndpoint = "https://app.scrapingbee.com/api/v1/"
	DefaultScrapingBotEndpoint = "https://api.scraping-bot.io/scrape/raw-html"
)

const defaultTimeout = 12 * time.Second

// APIConfig configures one of the hosted scraping API adapters.
type APIConfig struct {
	// Endpoint overrides the provider's default URL.
	Endpoint string
	// Keys are interchangeable API keys; one is picked at random per call.
	Keys    []string
	Timeout time.Duration
	// Detectors default to challenge.DefaultDetectors.
	Detectors []challenge.Detector
	Logger    *slog.Logger
}

type apiBase struct {
	name      string
	endpoint  string
	keys      *keypool.Pool
	client    *httpclient.Client
	detectors []challenge.Detector
	logger    *slog.Logger
}

func newAPIBase(name, defaultEndpoint string, cfg APIConfig) (apiBase, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Detectors == nil {
		cfg.Detectors = challenge.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return apiBase{}, fmt.Errorf("%s: invalid endpoint: %w", name, err)
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, MaxRedirects: 5})
	if err != nil {
		return apiBase{}, fmt.Errorf("%s: %w", name, err)
	}

	return apiBase{
		name:      name,
		endpoint:  cfg.Endpoint,
		keys:      keypool.New(cfg.Keys...),
		client:    client,
		detectors: cfg.Detectors,
		logger:    cfg.Logger.With("provider", name),
	}, nil
}

// Name implements Provider.
func (b *apiBase) Name() string { return b.name }

// Keys reports how many API keys are configured.
func (b *apiBase) Keys() int { return b.keys.Len() }

func (b *apiBase) pickKey() (string, bool) {
	key := b.keys.Pick()
	return key, key != ""
}

func (b *apiBase) missingKey() result.Result[Payload] {
	return result.Err[Payload](fmt.Sprintf("%s: api key not configured", b.name), CodeConfig)
}

// send runs req and turns the response into a Payload. decode, if set,
// extracts the page HTML from the provider's response envelope.
func (b *apiBase) send(ctx context.Context, req *http.Request, key string, t target.Target,
	decode func([]byte) result.Result[[]byte],
) result.Result[Payload] {
	resp, err := b.client.Fetch(ctx, req)
	if err != nil {
		b.logger.Debug("fetch failed", "key", keypool.Mask(key), "target", t.URL, "err", transportReason(err))
		return FromError(ctx, err)
	}
	if !isSuccess(resp.StatusCode) {
		b.logger.Debug("bad status", "key", keypool.Mask(key), "target", t.URL, "status", resp.StatusCode)
		return FromStatus(resp.StatusCode)
	}

	page := result.Ok(resp.Body)
	if decode != nil {
		page = decode(resp.Body)
	}
	body, ok := page.Value()
	if !ok {
		return result.FromFailure[Payload](page.Failure())
	}

	if blocked, source := challenge.Detect(challenge.Page{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, b.detectors); blocked {
		b.logger.Debug("challenge page", "key", keypool.Mask(key), "target", t.URL, "source", source)
		return result.Err[Payload]("challenge detected: "+source, CodeBlocked)
	}

	return result.Map(page, func(body []byte) Payload {
		return Payload{
			Provider:   b.name,
			URL:        t.URL,
			StatusCode: resp.StatusCode,
			Body:       body,
			Duration:   resp.Duration,
		}
	})
}

func newGet(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	return req, nil
}

// ScraperAPI fetches pages through api.scraperapi.com.
type ScraperAPI struct {
	apiBase
}

// NewScraperAPI creates the ScraperAPI adapter.
func NewScraperAPI(cfg APIConfig) (*ScraperAPI, error) {
	base, err := newAPIBase(NameScraperAPI, DefaultScraperAPIEndpoint, cfg)
	if err != nil {
		return nil, err
	}
	return &ScraperAPI{apiBase: base}, nil
}

// Fetch implements Provider.
func (p *ScraperAPI) Fetch(ctx context.Context, t target.Target) result.Result[Payload] {
	key, ok := p.pickKey()
	if !ok {
		return p.missingKey()
	}

	req, err := newGet(ctx, p.endpoint, url.Values{
		"api_key":      {key},
		"url":          {t.URL},
		"render":       {"false"},
		"keep_headers": {"true"},
		"country_code": {"ru"},
		"retry_404":    {"false"},
	})
	if err != nil {
		return result.Err[Payload](err.Error(), CodeConfig)
	}
	return p.send(ctx, req, key, t, nil)
}

// ScrapingBee fetches pages through app.scrapingbee.com.
type ScrapingBee struct {
	apiBase
}

// NewScrapingBee creates the ScrapingBee adapter.
func NewScrapingBee(cfg APIConfig) (*ScrapingBee, error) {
	base, err := newAPIBase(NameScrapingBee, DefaultScrapingBeeEndpoint, cfg)
	if err != nil {
		return nil, err
	}
	return &ScrapingBee{apiBase: base}, nil
}

// Fetch implements Provider.
func (p *ScrapingBee) Fetch(ctx context.Context, t target.Target) result.Result[Payload] {
	key, ok := p.pickKey()
	if !ok {
		return p.missingKey()
	}

	req, err := newGet(ctx, p.endpoint, url.Values{
		"api_key":         {key},
		"url":             {t.URL},
		"render_js":       {"false"},
		"premium_proxy":   {"true"},
		"country_code":    {"ru"},
		"block_ads":       {"true"},
		"block_resources": {"true"},
	})
	if err != nil {
		return result.Err[Payload](err.Error(), CodeConfig)
	}
	return p.send(ctx, req, key, t, nil)
}

// ScrapingBot fetches pages through api.scraping-bot.io. Unlike the other
// adapters it POSTs a JSON job and receives the HTML in a JSON envelope.
type ScrapingBot struct {
	apiBase
}

type scrapingBotRequest struct {
	URL       string `json:"url"`
	UseChrome bool   `json:"useChrome"`
}

type scrapingBotResponse struct {
	Success bool   `json:"success"`
	Body    string `json:"body"`
	Error   string `json:"error"`
}

// NewScrapingBot creates the Scraping-Bot adapter.
func NewScrapingBot(cfg APIConfig) (*ScrapingBot, error) {
	base, err := newAPIBase(NameScrapingBot, DefaultScrapingBotEndpoint, cfg)
	if err != nil {
		return nil, err
	}
	return &ScrapingBot{apiBase: base}, nil
}

// Fetch implements Provider.
func (p *ScrapingBot) Fetch(ctx context.Context, t target.Target) result.Result[Payload] {
	key, ok := p.pickKey()
	if !ok {
		return p.missingKey()
	}

	payload, err := json.Marshal(scrapingBotRequest{URL: t.URL})
	if err != nil {
		return result.Err[Payload](err.Error(), CodeConfig)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return result.Err[Payload](err.Error(), CodeConfig)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("scraping-bot", key)

	return p.send(ctx, req, key, t, decodeScrapingBot)
}

func decodeScrapingBot(raw []byte) result.Result[[]byte] {
	var env scrapingBotResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return result.Err[[]byte]("scrapingbot: decode response: "+err.Error(), CodeTransport)
	}
	if !env.Success {
		reason := env.Error
		if reason == "" {
			reason = "unknown api error"
		}
		return result.Err[[]byte]("scrapingbot: "+reason, CodeBadStatus)
	}
	return result.Ok([]byte(env.Body))
}
