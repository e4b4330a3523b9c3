package provider

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/FranksOps/scout/pkg/httpclient"
	"github.com/temoto/robotstxt"
)

// robotsCache fetches and caches robots.txt per scheme+host. Hosts whose
// robots.txt cannot be fetched or parsed are treated as allowing everything.
type robotsCache struct {
	client *httpclient.Client
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *httpclient.Client, logger *slog.Logger) *robotsCache {
	return &robotsCache{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch u.
func (r *robotsCache) Allowed(ctx context.Context, u *url.URL, userAgent string) bool {
	data := r.get(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}
	return data.FindGroup(userAgent).Test(u.EscapedPath())
}

func (r *robotsCache) get(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[origin]; ok {
		return data
	}

	data, err := r.fetch(ctx, origin)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing", "origin", origin, "err", err)
		// A canceled request should not pin the host as allow-all.
		if ctx.Err() != nil {
			return nil
		}
	}
	r.cache[origin] = data
	return data
}

func (r *robotsCache) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil
	}
	return robotstxt.FromBytes(resp.Body)
}
