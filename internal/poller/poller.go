// Package poller runs one unit per tracked symbol. Each poller fetches the
// symbol's quote series on a fixed interval and publishes the formatted line,
// or the failure, on the bus.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/provider"
	"tickertracker/internal/tickline"
	"tickertracker/internal/unit"
)

const (
	DefaultInterval = 30 * time.Second
	// DefaultStagger separates the first fetch of consecutive pollers.
	DefaultStagger = 17 * time.Millisecond
)

type Config struct {
	Symbol string
	From   time.Time
	// To is the end of the requested period. The zero value means the time
	// of each poll.
	To           time.Time
	Interval     time.Duration
	InitialDelay time.Duration
	// Timeout bounds a single fetch. Zero leaves it to the fetcher.
	Timeout time.Duration
}

// poll is the self-scheduled timer message.
type poll struct{}

type Poller struct {
	cfg     Config
	fetcher provider.Fetcher
	log     *zap.Logger
	now     func() time.Time
}

// NewFactory returns the unit factory of the poller for cfg.Symbol.
func NewFactory(cfg Config, fetcher provider.Fetcher, log *zap.Logger) unit.Factory {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("symbol", cfg.Symbol))
	return func() unit.Actor {
		return &Poller{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
	}
}

func (p *Poller) Started(c *unit.Context) error {
	c.SendLater(poll{}, p.cfg.InitialDelay)
	return nil
}

// Handle runs one poll and schedules the next one whatever the outcome.
// A failed fetch is only retried by the next scheduled poll.
func (p *Poller) Handle(c *unit.Context, msg unit.Message) error {
	if _, ok := msg.(poll); !ok {
		return nil
	}
	defer c.SendLater(poll{}, p.cfg.Interval)
	p.poll(c)
	return nil
}

func (p *Poller) poll(c *unit.Context) {
	to := p.cfg.To
	if to.IsZero() {
		to = p.now()
	}

	ctx := c.Context()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	line, err := FetchLine(ctx, p.fetcher, p.cfg.Symbol, p.cfg.From, to)
	if c.Context().Err() != nil {
		// Shutting down; the result is of no interest to anyone.
		return
	}
	if err != nil {
		p.log.Warn("poll failed", zap.Error(err))
		c.Publish(bus.Error(p.cfg.Symbol, err))
		return
	}
	n := c.Publish(bus.Tick(p.cfg.Symbol, line))
	p.log.Debug("tick published", zap.Int("deliveries", n))
}

// FetchLine fetches symbol over [from, to] and formats its tick line. A
// series without samples is reported as a FetchError.
func FetchLine(ctx context.Context, f provider.Fetcher, symbol string, from, to time.Time) (string, error) {
	series, err := f.Fetch(ctx, symbol, from, to)
	if err != nil {
		return "", err
	}
	if len(series.Samples) == 0 {
		return "", &provider.FetchError{Provider: f.Name(), Symbol: symbol, Err: provider.ErrEmptySeries}
	}
	if series.Symbol == "" {
		series.Symbol = symbol
	}
	return tickline.Format(series), nil
}
