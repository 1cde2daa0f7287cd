// Package cache provides a TTL decorator for provider.Fetcher.
package cache

import (
	"context"
	"sync"
	"time"

	"tickertracker/internal/provider"
)

// entry stores the cached series of one symbol and period start.
type entry struct {
	expiresAt time.Time
	series    provider.Series
}

type key struct {
	symbol string
	from   time.Time
}

// Fetcher caches non-empty series per symbol and period start for TTL. The
// period end is not part of the key: a series fetched within TTL answers any
// end, which is what a rolling "until now" poll asks for.
type Fetcher struct {
	F        provider.Fetcher
	TTL      time.Duration
	MaxItems int

	mu    sync.RWMutex
	items map[key]entry
	now   func() time.Time
}

func (c *Fetcher) Name() string { return c.F.Name() }

// Fetch returns the cached series when still valid, otherwise fetches and
// stores it. Errors are never cached.
func (c *Fetcher) Fetch(ctx context.Context, symbol string, from, to time.Time) (provider.Series, error) {
	if c.TTL <= 0 {
		return c.F.Fetch(ctx, symbol, from, to)
	}
	now := c.clock()
	k := key{symbol: symbol, from: from.UTC()}

	c.mu.RLock()
	e, ok := c.items[k]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.series, nil
	}

	s, err := c.F.Fetch(ctx, symbol, from, to)
	if err != nil || len(s.Samples) == 0 {
		return s, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[key]entry)
	}
	c.items[k] = entry{expiresAt: now.Add(c.TTL), series: s}
	c.evict(now)
	c.mu.Unlock()
	return s, nil
}

// evict drops expired entries first, then arbitrary ones, until the cache
// holds at most MaxItems. Callers hold mu.
func (c *Fetcher) evict(now time.Time) {
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	for k, v := range c.items {
		if !now.Before(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		delete(c.items, k)
	}
}

// Len returns the number of cached entries, expired ones included.
func (c *Fetcher) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Fetcher) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
