package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/unit"
)

// LastN asks the cache for its N most recent lines.
type LastN int

// Cache is the unit owning a Buffer. It records every Tick published on the
// bus; a restart starts again from an empty buffer.
type Cache struct {
	buf *Buffer
	log *zap.Logger
}

// NewFactory returns a unit factory for caches of the given capacity.
func NewFactory(capacity int, log *zap.Logger) unit.Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return func() unit.Actor {
		return &Cache{buf: NewBuffer(capacity), log: log}
	}
}

func (c *Cache) Started(uc *unit.Context) error {
	c.log.Debug("history cache started", zap.Int("capacity", c.buf.Cap()))
	return uc.Subscribe(bus.KindTick)
}

func (c *Cache) Handle(_ *unit.Context, msg unit.Message) error {
	if ev, ok := msg.(bus.Event); ok && ev.Kind == bus.KindTick {
		c.buf.Push(ev.Line)
	}
	return nil
}

func (c *Cache) Reply(_ *unit.Context, msg unit.Message) (any, error) {
	n, ok := msg.(LastN)
	if !ok {
		return nil, fmt.Errorf("history: unsupported request %T", msg)
	}
	return c.buf.Last(int(n)), nil
}

// Client queries a running Cache unit.
type Client struct {
	addr *unit.Addr
}

func NewClient(addr *unit.Addr) *Client {
	return &Client{addr: addr}
}

// Last returns up to n lines, most recent first.
func (c *Client) Last(ctx context.Context, n int) ([]string, error) {
	v, err := c.addr.Call(ctx, LastN(n))
	if err != nil {
		return nil, fmt.Errorf("history last %d: %w", n, err)
	}
	lines, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("history last %d: unexpected reply %T", n, v)
	}
	return lines, nil
}
