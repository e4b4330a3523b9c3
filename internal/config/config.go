// Package config loads scout settings from an optional YAML file, a .env
// file, SCOUT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with "." replaced by
// "_": search.provider_timeout is SCOUT_SEARCH_PROVIDER_TIMEOUT.
const EnvPrefix = "SCOUT"

// Config is the full scout configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	TrustForwarded bool          `mapstructure:"trust_forwarded"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SearchConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
}

type RateLimitConfig struct {
	MaxTokens       float64       `mapstructure:"max_tokens"`
	RefillPerSecond float64       `mapstructure:"refill_per_second"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	// RedisURL switches admission to a bucket store shared between replicas.
	RedisURL string `mapstructure:"redis_url"`
}

// ProvidersConfig lists the upstream providers. Order is the failover
// priority; names not in Order are not registered.
type ProvidersConfig struct {
	Order       []string       `mapstructure:"order"`
	ScraperAPI  APIProvider    `mapstructure:"scraperapi"`
	ScrapingBee APIProvider    `mapstructure:"scrapingbee"`
	ScrapingBot APIProvider    `mapstructure:"scrapingbot"`
	Direct      DirectProvider `mapstructure:"direct"`
}

type APIProvider struct {
	Endpoint string   `mapstructure:"endpoint"`
	Keys     []string `mapstructure:"keys"`
	// Timeout bounds one upstream call. Zero or anything longer than
	// search.provider_timeout is clamped to it.
	Timeout time.Duration `mapstructure:"timeout"`
}

type DirectProvider struct {
	Enabled bool     `mapstructure:"enabled"`
	Proxies []string `mapstructure:"proxies"`
	// ProxyFile holds one proxy URL per line.
	ProxyFile     string        `mapstructure:"proxy_file"`
	Fingerprint   string        `mapstructure:"fingerprint"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	RPS           float64       `mapstructure:"rps"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	// Backend is one of "", "sqlite", "postgres" or "json". Empty disables
	// the audit log.
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewViper returns a viper instance carrying scout's defaults and bound to
// SCOUT_* environment variables. Callers may bind flags before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.trust_forwarded", false)
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("search.base_url", "https://www.chipdip.ru")
	v.SetDefault("search.provider_timeout", 10*time.Second)
	v.SetDefault("search.cooldown", 15*time.Minute)
	v.SetDefault("search.heartbeat", 12*time.Second)

	v.SetDefault("ratelimit.max_tokens", 20)
	v.SetDefault("ratelimit.refill_per_second", 20.0/60.0)
	v.SetDefault("ratelimit.idle_ttl", 5*time.Minute)
	v.SetDefault("ratelimit.redis_url", "")

	v.SetDefault("providers.order", []string{"scraperapi", "scrapingbee", "scrapingbot", "direct"})
	for _, name := range []string{"scraperapi", "scrapingbee", "scrapingbot"} {
		v.SetDefault("providers."+name+".endpoint", "")
		v.SetDefault("providers."+name+".keys", []string{})
		v.SetDefault("providers."+name+".timeout", 0)
	}
	v.SetDefault("providers.direct.enabled", true)
	v.SetDefault("providers.direct.proxies", []string{})
	v.SetDefault("providers.direct.proxy_file", "")
	v.SetDefault("providers.direct.fingerprint", "chrome")
	v.SetDefault("providers.direct.respect_robots", true)
	v.SetDefault("providers.direct.rps", 1.0)
	v.SetDefault("providers.direct.timeout", 0)

	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	return v
}

// Load reads .env from the working directory when present, then the YAML
// file at path when path is not empty, and decodes everything into a
// validated Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize splits comma-separated list values that arrive as a single
// element from the environment (SCOUT_PROVIDERS_ORDER=direct,scraperapi).
func (c *Config) normalize() {
	c.Providers.Order = splitList(c.Providers.Order)
	c.Providers.ScraperAPI.Keys = splitList(c.Providers.ScraperAPI.Keys)
	c.Providers.ScrapingBee.Keys = splitList(c.Providers.ScrapingBee.Keys)
	c.Providers.ScrapingBot.Keys = splitList(c.Providers.ScrapingBot.Keys)
	c.Providers.Direct.Proxies = splitList(c.Providers.Direct.Proxies)
	for i, name := range c.Providers.Order {
		c.Providers.Order[i] = strings.ToLower(name)
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}

var knownProviders = map[string]bool{
	"scraperapi":  true,
	"scrapingbee": true,
	"scrapingbot": true,
	"direct":      true,
}

// Validate checks values that would otherwise fail at request time.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Search.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("search.provider_timeout must be positive"))
	} else if c.Search.ProviderTimeout >= c.Server.RequestTimeout {
		errs = append(errs, fmt.Errorf("search.provider_timeout (%s) must be shorter than server.request_timeout (%s)",
			c.Search.ProviderTimeout, c.Server.RequestTimeout))
	}
	if c.Search.Cooldown < 0 {
		errs = append(errs, errors.New("search.cooldown must not be negative"))
	}
	if c.Search.Heartbeat <= 0 {
		errs = append(errs, errors.New("search.heartbeat must be positive"))
	}

	if c.RateLimit.MaxTokens <= 0 {
		errs = append(errs, errors.New("ratelimit.max_tokens must be positive"))
	}
	if c.RateLimit.RefillPerSecond <= 0 {
		errs = append(errs, errors.New("ratelimit.refill_per_second must be positive"))
	}
	if c.RateLimit.IdleTTL <= 0 {
		errs = append(errs, errors.New("ratelimit.idle_ttl must be positive"))
	}

	seen := make(map[string]bool)
	for _, name := range c.Providers.Order {
		if !knownProviders[name] {
			errs = append(errs, fmt.Errorf("providers.order: unknown provider %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("providers.order: duplicate provider %q", name))
		}
		seen[name] = true
	}
	if c.Providers.Direct.RPS < 0 {
		errs = append(errs, errors.New("providers.direct.rps must not be negative"))
	}

	switch c.Storage.Backend {
	case "":
	case "sqlite", "postgres", "json":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for backend %q", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// RetryAfter is the time the admission bucket needs to regain one token.
func (c RateLimitConfig) RetryAfter() time.Duration {
	if c.RefillPerSecond <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / c.RefillPerSecond)
}
