// Package tracker assembles the pipeline: one poller per symbol publishing on
// a shared bus, and the consumers subscribed to it.
package tracker

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/config"
	"tickertracker/internal/history"
	"tickertracker/internal/poller"
	"tickertracker/internal/provider"
	"tickertracker/internal/relay"
	"tickertracker/internal/sink"
	"tickertracker/internal/tickline"
	"tickertracker/internal/unit"
)

type Config struct {
	Symbols []string
	From    time.Time
	// To is the end of the polled period; zero follows the clock.
	To time.Time

	CacheCapacity int
	PollInterval  time.Duration
	FlushInterval time.Duration
	Stagger       time.Duration
	FetchTimeout  time.Duration
	RestartDelay  time.Duration
	MailboxSize   int

	RelayChannelPrefix string
}

// FromConfig derives the pipeline settings from the loaded configuration.
func FromConfig(c config.Config, from time.Time) Config {
	return Config{
		Symbols:            c.Tracker.Symbols,
		From:               from,
		CacheCapacity:      c.Tracker.CacheCapacity,
		PollInterval:       c.Tracker.PollInterval(),
		FlushInterval:      c.Tracker.FlushInterval(),
		Stagger:            c.Tracker.Stagger(),
		FetchTimeout:       c.Tracker.FetchTimeout(),
		RestartDelay:       c.Tracker.RestartDelay(),
		MailboxSize:        c.Tracker.MailboxSize,
		RelayChannelPrefix: c.Redis.ChannelPrefix,
	}
}

// Deps are the collaborators of the pipeline. Nil optional members disable
// the matching consumer.
type Deps struct {
	Fetcher provider.Fetcher
	Logger  *zap.Logger

	// Stdout receives tick lines after the CSV header. Optional.
	Stdout io.Writer
	// Stderr receives error lines. Optional.
	Stderr io.Writer
	// Output is the durable sink's writer, named OutputPath in errors. Optional.
	Output     io.Writer
	OutputPath string
	// Redis enables the pub/sub relay. Optional.
	Redis relay.Publisher
}

type Tracker struct {
	bus       *bus.Bus
	log       *zap.Logger
	history   *history.Client
	errSink   *unit.Addr
	consumers []*unit.Addr
	pollers   []*unit.Addr
}

// Start launches the consumers and then one poller per symbol. Poller i makes
// its first fetch after i*cfg.Stagger. On error nothing is left running.
func Start(cfg Config, deps Deps) (*Tracker, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("tracker: no fetcher")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("tracker: no symbols")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	t := &Tracker{bus: bus.New(log.Named("bus")), log: log}
	opts := func(name string) unit.Options {
		return unit.Options{
			Name:         name,
			MailboxSize:  cfg.MailboxSize,
			RestartDelay: cfg.RestartDelay,
			Bus:          t.bus,
			Logger:       log.Named("unit"),
		}
	}

	consumers := []struct {
		name    string
		factory unit.Factory
		enabled bool
	}{
		{"error-sink", sink.NewErrorsFactory(deps.Stderr), deps.Stderr != nil},
		{"console-sink", sink.NewConsoleFactory(deps.Stdout, tickline.Header), deps.Stdout != nil},
		{"file-sink", sink.NewFileFactory(sink.FileConfig{
			Path:          deps.OutputPath,
			Writer:        deps.Output,
			FlushInterval: cfg.FlushInterval,
		}, log.Named("sink")), deps.Output != nil},
		{"history", history.NewFactory(cfg.CacheCapacity, log.Named("history")), true},
		{"redis-relay", relay.NewFactory(deps.Redis, relay.Config{ChannelPrefix: cfg.RelayChannelPrefix}, log.Named("relay")), deps.Redis != nil},
	}
	for _, c := range consumers {
		if !c.enabled {
			continue
		}
		addr, err := unit.Start(c.factory, opts(c.name))
		if err != nil {
			t.Stop()
			return nil, err
		}
		switch c.name {
		case "error-sink":
			t.errSink = addr
			continue
		case "history":
			t.history = history.NewClient(addr)
		}
		t.consumers = append(t.consumers, addr)
	}

	for i, symbol := range cfg.Symbols {
		pc := poller.Config{
			Symbol:       symbol,
			From:         cfg.From,
			To:           cfg.To,
			Interval:     cfg.PollInterval,
			InitialDelay: time.Duration(i) * cfg.Stagger,
			Timeout:      cfg.FetchTimeout,
		}
		addr, err := unit.Start(poller.NewFactory(pc, deps.Fetcher, log.Named("poller")), opts("poller-"+symbol))
		if err != nil {
			t.Stop()
			return nil, fmt.Errorf("start poller %s: %w", symbol, err)
		}
		t.pollers = append(t.pollers, addr)
	}

	log.Info("tracker started", zap.Strings("symbols", cfg.Symbols), zap.Int("consumers", len(t.consumers)))
	return t, nil
}

// Bus returns the bus the pollers publish on.
func (t *Tracker) Bus() *bus.Bus { return t.bus }

// History returns the client of the history cache.
func (t *Tracker) History() *history.Client { return t.history }

// Stop stops the pollers first so no new ticks are produced, then the
// consumers, which handle what is already queued and flush. The error sink
// goes last so errors raised by the final flush are still written.
func (t *Tracker) Stop() {
	stopAll(t.pollers)
	stopAll(t.consumers)
	if t.errSink != nil {
		stopAll([]*unit.Addr{t.errSink})
	}
	t.log.Info("tracker stopped", zap.Uint64("dropped_events", t.bus.Dropped()))
}

func stopAll(units []*unit.Addr) {
	for _, u := range units {
		u.Stop()
	}
	for _, u := range units {
		u.Wait()
	}
}
