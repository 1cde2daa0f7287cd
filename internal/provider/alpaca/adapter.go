package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tickertracker/internal/provider"
)

// BarsClient is the subset of the Alpaca market data client used here.
type BarsClient interface {
	GetBars(symbol string, params marketdata.GetBarsParams) ([]marketdata.Bar, error)
}

type Config struct {
	Name      string // display name, default: alpaca
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string // sip or iex; empty uses the account default
	Currency  string // Alpaca only serves USD listed assets, default: USD
	Timeout   time.Duration
}

// Adapter serves daily bars from Alpaca, adjusted for splits and dividends.
type Adapter struct {
	cfg    Config
	client BarsClient
}

// New builds an adapter around client. A nil client is replaced by a
// marketdata client configured from cfg.
func New(cfg Config, client BarsClient) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "alpaca"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if client == nil {
		client = marketdata.NewClient(marketdata.ClientOpts{
			ApiKey:    cfg.APIKey,
			ApiSecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
			Feed:      cfg.Feed,
			Timeout:   cfg.Timeout,
		})
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Fetch(ctx context.Context, symbol string, from, to time.Time) (provider.Series, error) {
	// The SDK call is not context aware; bail out early if we are already done.
	if err := ctx.Err(); err != nil {
		return provider.Series{}, &provider.FetchError{Provider: a.Name(), Symbol: symbol, Err: err}
	}
	params := marketdata.GetBarsParams{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      from,
		Feed:       a.cfg.Feed,
	}
	if !to.IsZero() {
		params.End = to
	}
	bars, err := a.client.GetBars(symbol, params)
	if err != nil {
		return provider.Series{}, &provider.FetchError{Provider: a.Name(), Symbol: symbol, Err: fmt.Errorf("get bars: %w", err)}
	}
	if len(bars) == 0 {
		return provider.Series{}, &provider.FetchError{Provider: a.Name(), Symbol: symbol, Err: provider.ErrEmptySeries}
	}

	series := provider.Series{
		Symbol:   symbol,
		Currency: a.cfg.Currency,
		Samples:  make([]provider.Sample, 0, len(bars)),
	}
	for _, b := range bars {
		series.Samples = append(series.Samples, provider.Sample{At: b.Timestamp.UTC(), AdjClose: b.Close})
	}
	return series, nil
}
