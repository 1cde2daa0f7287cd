// Package relay forwards tick lines to Redis pub/sub so other processes can
// follow the tracker. Nothing is stored in Redis.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/unit"
)

const (
	DefaultChannelPrefix = "ticks."
	DefaultTimeout       = 2 * time.Second

	// Source tags the error events published by the relay.
	Source = "redis-relay"
)

// Publisher is the part of a Redis client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

var _ Publisher = (*redis.Client)(nil)

type Config struct {
	// ChannelPrefix is followed by the tick's symbol.
	ChannelPrefix string
	Timeout       time.Duration
}

// Relay publishes every Tick line on "<prefix><symbol>". A failed publish is
// reported as an error event and the line is not retried.
type Relay struct {
	client Publisher
	cfg    Config
	log    *zap.Logger
}

func NewFactory(client Publisher, cfg Config, log *zap.Logger) unit.Factory {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func() unit.Actor {
		return &Relay{client: client, cfg: cfg, log: log}
	}
}

func (r *Relay) Started(c *unit.Context) error {
	return c.Subscribe(bus.KindTick)
}

func (r *Relay) Handle(c *unit.Context, msg unit.Message) error {
	ev, ok := msg.(bus.Event)
	if !ok || ev.Kind != bus.KindTick {
		return nil
	}
	// Ticks drained after Stop are still relayed, bounded by the timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context()), r.cfg.Timeout)
	defer cancel()

	channel := r.cfg.ChannelPrefix + ev.Source
	if err := r.client.Publish(ctx, channel, ev.Line).Err(); err != nil {
		r.log.Warn("redis publish failed", zap.String("channel", channel), zap.Error(err))
		c.Publish(bus.Error(Source, fmt.Errorf("publish %s: %w", channel, err)))
	}
	return nil
}
