package tracker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"tickertracker/internal/poller"
	"tickertracker/internal/provider"
)

// Result is the outcome of a single fetch of one symbol.
type Result struct {
	Symbol string
	Line   string
	Err    error
}

// FetchOnce fetches every symbol once, at most parallel at a time, and returns
// the results in symbol order. A failed symbol does not affect the others.
func FetchOnce(ctx context.Context, f provider.Fetcher, symbols []string, from, to time.Time, parallel int) []Result {
	results := make([]Result, len(symbols))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, symbol := range symbols {
		g.Go(func() error {
			line, err := poller.FetchLine(ctx, f, symbol, from, to)
			results[i] = Result{Symbol: symbol, Line: line, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
