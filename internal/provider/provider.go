package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sample is one daily observation of a symbol.
type Sample struct {
	At       time.Time `json:"at"`
	AdjClose float64   `json:"adj_close"`
}

// Series is the quote history of one symbol over a period, oldest first.
// It is treated as immutable once returned by a Fetcher.
type Series struct {
	Symbol   string   `json:"symbol"`
	Currency string   `json:"currency"`
	Samples  []Sample `json:"samples"`
}

// Closes returns the adjusted close values in sample order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Samples))
	for i, q := range s.Samples {
		out[i] = q.AdjClose
	}
	return out
}

// Fetcher retrieves the daily quote series of a symbol over [from, to].
//
//go:generate mockgen -source=provider.go -destination=mock/provider_mock.go -package=mock
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error)
}

// ErrEmptySeries is returned when the upstream answers without any sample.
var ErrEmptySeries = errors.New("empty quote series")

// FetchError reports a failed fetch for one symbol.
type FetchError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
