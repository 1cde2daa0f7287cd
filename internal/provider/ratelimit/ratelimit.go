package ratelimit

import (
	"context"
	"sync"
	"time"

	"tickertracker/internal/provider"
)

// MinInterval wraps a fetcher and enforces a minimum time between upstream calls.
// All pollers share one MinInterval, so concurrent fetches queue behind each other
// until the interval has elapsed since the last call, or return early if the
// context is canceled.
type MinInterval struct {
	F        provider.Fetcher
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.F.Name() }

func (m *MinInterval) Fetch(ctx context.Context, symbol string, from, to time.Time) (provider.Series, error) {
	if m.Interval <= 0 {
		return m.F.Fetch(ctx, symbol, from, to)
	}
	// Reserve the next slot under the lock so two waiters never share one.
	m.mu.Lock()
	slot := m.last.Add(m.Interval)
	now := time.Now()
	if slot.Before(now) {
		slot = now
	}
	m.last = slot
	m.mu.Unlock()

	if wait := time.Until(slot); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return provider.Series{}, ctx.Err()
		case <-t.C:
		}
	}
	return m.F.Fetch(ctx, symbol, from, to)
}
