package unit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tickertracker/internal/bus"
)

var errNoBus = errors.New("unit has no bus")

// Context is what an incarnation of a unit sees of its runtime. A new Context
// is built on every restart; timers scheduled through an old one are cancelled.
type Context struct {
	ctx  context.Context
	addr *Addr
	bus  *bus.Bus
	log  *zap.Logger
	gen  uint64

	mu        sync.Mutex
	closed    bool
	nextTimer uint64
	timers    map[uint64]*time.Timer
}

// Context is cancelled when the unit is asked to stop.
func (c *Context) Context() context.Context { return c.ctx }

// Self returns the address of the running unit.
func (c *Context) Self() *Addr { return c.addr }

// Logger returns the unit's logger.
func (c *Context) Logger() *zap.Logger { return c.log }

// Subscribe registers the unit for the given event kinds.
func (c *Context) Subscribe(kinds ...bus.Kind) error {
	if c.bus == nil {
		return errNoBus
	}
	for _, k := range kinds {
		c.bus.Subscribe(k, c.addr)
	}
	return nil
}

// Publish broadcasts ev and returns the number of deliveries.
func (c *Context) Publish(ev bus.Event) int {
	if c.bus == nil {
		c.log.Warn("event published without a bus", zap.Stringer("kind", ev.Kind), zap.String("line", ev.Line))
		return 0
	}
	return c.bus.Publish(ev)
}

// SendLater delivers msg to this incarnation after d. Unlike Send, the
// delivery waits for mailbox space instead of dropping the message.
func (c *Context) SendLater(msg Message, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.nextTimer++
	id := c.nextTimer
	c.timers[id] = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()

		select {
		case c.addr.mailbox <- envelope{msg: msg, gen: c.gen}:
		case <-c.addr.stop:
		}
	})
}

func (c *Context) cancelTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
