// Package factory builds the configured quote fetcher behind its rate limiter
// and optional cache.
package factory

import (
	"fmt"
	"time"

	"tickertracker/internal/config"
	"tickertracker/internal/httpx"
	"tickertracker/internal/provider"
	"tickertracker/internal/provider/alpaca"
	"tickertracker/internal/provider/cache"
	"tickertracker/internal/provider/ratelimit"
	"tickertracker/internal/provider/yahoo"
)

// NewFetcher returns the fetcher named by cfg.Name. A nil hc is replaced by
// an httpx client using the provider timeout. The returned fetcher is shared
// by every poller, so its limiter caps the whole process. Cache hits do not
// count against the limiter.
func NewFetcher(cfg config.Provider, hc *httpx.Client) (provider.Fetcher, error) {
	var f provider.Fetcher
	switch cfg.Name {
	case "", "yahoo":
		if hc == nil {
			hc = httpx.New(time.Duration(cfg.Yahoo.TimeoutSec) * time.Second)
		}
		opts := []yahoo.Option{yahoo.WithHTTPClient(hc)}
		if cfg.Yahoo.BaseURL != "" {
			opts = append(opts, yahoo.WithBaseURL(cfg.Yahoo.BaseURL))
		}
		f = yahoo.New(opts...)
	case "alpaca":
		f = alpaca.New(alpaca.Config{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			BaseURL:   cfg.Alpaca.BaseURL,
			Feed:      cfg.Alpaca.Feed,
			Currency:  cfg.Alpaca.Currency,
			Timeout:   time.Duration(cfg.Alpaca.TimeoutSec) * time.Second,
		}, nil)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
	f = Limit(f, cfg)
	if cfg.CacheTTLSec > 0 {
		f = &cache.Fetcher{F: f, TTL: time.Duration(cfg.CacheTTLSec) * time.Second, MaxItems: cfg.CacheMaxItems}
	}
	return f, nil
}

// Limit wraps f with a token bucket when a request rate is set, otherwise
// with a minimum interval when one is set.
func Limit(f provider.Fetcher, cfg config.Provider) provider.Fetcher {
	if cfg.MaxRequestsPerMinute > 0 {
		rate := float64(cfg.MaxRequestsPerMinute) / 60.0
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		return &ratelimit.TokenBucketFetcher{F: f, TB: ratelimit.NewTokenBucket(rate, burst)}
	}
	if cfg.MinRequestIntervalMs > 0 {
		return &ratelimit.MinInterval{F: f, Interval: time.Duration(cfg.MinRequestIntervalMs) * time.Millisecond}
	}
	return f
}
