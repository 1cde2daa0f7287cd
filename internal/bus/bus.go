// Package bus is the in-process broadcast between the pollers and the
// consumers. Events are routed by kind to every subscribed mailbox; the
// publisher never waits on a subscriber.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind selects which subscribers receive an event.
type Kind uint8

const (
	KindTick Kind = iota + 1
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is the unit of data flowing through the bus.
type Event struct {
	Kind   Kind
	Source string
	Line   string
	At     time.Time
}

// Tick wraps a formatted tick line.
func Tick(source, line string) Event {
	return Event{Kind: KindTick, Source: source, Line: line, At: time.Now()}
}

// Error wraps a failure reported by source.
func Error(source string, err error) Event {
	return Event{Kind: KindError, Source: source, Line: fmt.Sprintf("%s|%v", source, err), At: time.Now()}
}

var (
	// ErrMailboxFull is returned by a mailbox that cannot take more messages.
	ErrMailboxFull = errors.New("mailbox full")
	// ErrClosed is returned by a mailbox whose owner has stopped.
	ErrClosed = errors.New("mailbox closed")
)

// Mailbox receives events on behalf of one subscriber. Send must not block.
type Mailbox interface {
	ID() uint64
	Send(msg any) error
}

var lastID atomic.Uint64

// NextID hands out process-unique mailbox ids.
func NextID() uint64 { return lastID.Add(1) }

// Bus maps event kinds to the mailboxes subscribed to them.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[Kind][]Mailbox

	dropped atomic.Uint64
}

func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, subs: make(map[Kind][]Mailbox)}
}

// Subscribe registers m for future events of kind. Subscribing twice is a no-op.
func (b *Bus) Subscribe(kind Kind, m Mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[kind] {
		if s.ID() == m.ID() {
			return
		}
	}
	b.subs[kind] = append(b.subs[kind], m)
}

// Unsubscribe removes m from kind.
func (b *Bus) Unsubscribe(kind Kind, m Mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(kind, m.ID())
}

// UnsubscribeAll removes m from every kind.
func (b *Bus) UnsubscribeAll(m Mailbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind := range b.subs {
		b.remove(kind, m.ID())
	}
}

func (b *Bus) remove(kind Kind, id uint64) {
	subs := b.subs[kind]
	for i, s := range subs {
		if s.ID() == id {
			// copy so a snapshot taken by Publish is never mutated
			next := make([]Mailbox, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			b.subs[kind] = append(next, subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every mailbox subscribed to its kind and returns the
// number of successful deliveries. A failed delivery only affects that mailbox.
func (b *Bus) Publish(ev Event) int {
	b.mu.RLock()
	subs := b.subs[ev.Kind]
	b.mu.RUnlock()

	delivered := 0
	for _, m := range subs {
		if err := m.Send(ev); err != nil {
			b.dropped.Add(1)
			b.log.Debug("dropped event",
				zap.Stringer("kind", ev.Kind),
				zap.String("source", ev.Source),
				zap.Uint64("mailbox", m.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Subscribers returns the number of mailboxes subscribed to kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Dropped returns the number of deliveries dropped so far.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
