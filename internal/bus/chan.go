package bus

import "sync"

// Chan is a mailbox backed by a buffered channel, for transient subscribers
// such as streaming clients that read events from their own goroutine.
type Chan struct {
	id   uint64
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewChan(size int) *Chan {
	if size <= 0 {
		size = 1
	}
	return &Chan{id: NextID(), ch: make(chan Event, size), done: make(chan struct{})}
}

func (c *Chan) ID() uint64 { return c.id }

// Send queues msg if it is an Event. Non-event messages are ignored.
func (c *Chan) Send(msg any) error {
	ev, ok := msg.(Event)
	if !ok {
		return nil
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrMailboxFull
	}
}

// C returns the channel events are delivered on.
func (c *Chan) C() <-chan Event { return c.ch }

// Done is closed once Close has been called.
func (c *Chan) Done() <-chan struct{} { return c.done }

// Close rejects further deliveries. The event channel itself stays open.
func (c *Chan) Close() { c.once.Do(func() { close(c.done) }) }
