// Package unit runs long-lived actors. Each unit owns a goroutine that drains
// a private mailbox one message at a time, so its state needs no locking. A
// supervisor rebuilds the actor from its factory whenever the loop crashes.
//
// Lifecycle: Created -> Starting (Started) -> Running -> Stopped | Crashed.
// A crash is a panic or a non-nil error returned from Handle. Crashed units
// are restarted on the same address with fresh state; stopped units are not.
package unit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"tickertracker/internal/bus"
)

// Message is anything a unit accepts in its mailbox.
type Message = any

// Actor is the behavior run by a unit.
type Actor interface {
	// Started runs once per incarnation before any message is handled.
	Started(c *Context) error
	// Handle processes one message. A non-nil error crashes the unit.
	Handle(c *Context, msg Message) error
}

// Replier answers requests sent with Addr.Call.
type Replier interface {
	Reply(c *Context, msg Message) (any, error)
}

// Stopper is notified once when the unit is stopped gracefully.
type Stopper interface {
	Stopped(c *Context)
}

// Factory builds the initial state of a unit. It is called again on every restart.
type Factory func() Actor

const (
	DefaultMailboxSize  = 1024
	DefaultRestartDelay = 100 * time.Millisecond
)

var (
	// ErrCrashed is returned to a caller whose request crashed the unit.
	ErrCrashed = errors.New("unit crashed while handling request")
	// ErrNoReply is returned when the actor does not implement Replier.
	ErrNoReply = errors.New("unit does not answer requests")
)

// CrashError describes an abnormal exit of a unit's processing loop.
type CrashError struct {
	Unit  string
	Cause error
}

func (e *CrashError) Error() string { return fmt.Sprintf("unit %s crashed: %v", e.Unit, e.Cause) }

func (e *CrashError) Unwrap() error { return e.Cause }

type Options struct {
	Name         string
	MailboxSize  int
	RestartDelay time.Duration
	Bus          *bus.Bus
	Logger       *zap.Logger
}

type envelope struct {
	msg   Message
	reply chan result
	// gen is the incarnation that scheduled a timer message, zero otherwise.
	gen uint64
}

type result struct {
	val any
	err error
}

// Addr is the handle of a running unit. It stays valid across restarts.
type Addr struct {
	id      uint64
	name    string
	mailbox chan envelope

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	restarts atomic.Uint64
}

func (a *Addr) ID() uint64   { return a.id }
func (a *Addr) Name() string { return a.name }

// Restarts returns how many times the unit has been rebuilt after a crash.
func (a *Addr) Restarts() uint64 { return a.restarts.Load() }

// Send queues msg without blocking. It fails with bus.ErrMailboxFull or
// bus.ErrClosed, in which case the message is dropped.
func (a *Addr) Send(msg Message) error {
	return a.offer(envelope{msg: msg})
}

func (a *Addr) offer(env envelope) error {
	select {
	case <-a.stop:
		return bus.ErrClosed
	default:
	}
	select {
	case a.mailbox <- env:
		return nil
	case <-a.stop:
		return bus.ErrClosed
	default:
		return bus.ErrMailboxFull
	}
}

// Call sends msg as a request and waits for the unit to answer it from its
// own loop, so the answer never observes a half-applied message.
func (a *Addr) Call(ctx context.Context, msg Message) (any, error) {
	reply := make(chan result, 1)
	if err := a.offer(envelope{msg: msg, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		select {
		case r := <-reply:
			return r.val, r.err
		default:
			return nil, bus.ErrClosed
		}
	}
}

// Stop asks the unit to finish the messages already queued, run its Stopped
// hook and exit. It does not wait; use Wait for that.
func (a *Addr) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Done is closed when the unit has exited.
func (a *Addr) Done() <-chan struct{} { return a.done }

// Wait blocks until the unit has exited.
func (a *Addr) Wait() { <-a.done }

type supervisor struct {
	addr    *Addr
	factory Factory
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	gen     uint64
}

// Start builds the first incarnation of a unit, runs its Started hook and
// hands it to a supervisor. An error from the first Started is returned and
// nothing keeps running.
func Start(factory Factory, opts Options) (*Addr, error) {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	addr := &Addr{
		id:      bus.NextID(),
		name:    opts.Name,
		mailbox: make(chan envelope, opts.MailboxSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &supervisor{
		addr:    addr,
		factory: factory,
		opts:    opts,
		log:     opts.Logger.With(zap.String("unit", opts.Name)),
		ctx:     ctx,
	}

	actor := factory()
	c := s.newContext()
	if err := s.start(actor, c); err != nil {
		c.cancelTimers()
		cancel()
		addr.Stop()
		close(addr.done)
		return nil, fmt.Errorf("starting unit %s: %w", opts.Name, err)
	}

	// In-flight work observes shutdown through Context.Context.
	go func() {
		<-addr.stop
		cancel()
	}()
	go s.run(actor, c)
	return addr, nil
}

func (s *supervisor) newContext() *Context {
	s.gen++
	return &Context{
		ctx:    s.ctx,
		addr:   s.addr,
		bus:    s.opts.Bus,
		log:    s.log,
		gen:    s.gen,
		timers: make(map[uint64]*time.Timer),
	}
}

func (s *supervisor) run(a Actor, c *Context) {
	defer close(s.addr.done)
	for {
		crash := s.loop(a, c)
		c.cancelTimers()
		if crash == nil {
			s.log.Debug("unit stopped")
			return
		}
		n := s.addr.restarts.Add(1)
		s.log.Error("unit crashed, restarting with fresh state", zap.Uint64("restarts", n), zap.Error(crash.Cause))

		var ok bool
		if a, c, ok = s.restart(); !ok {
			return
		}
	}
}

func (s *supervisor) restart() (Actor, *Context, bool) {
	for {
		t := time.NewTimer(s.opts.RestartDelay)
		select {
		case <-s.addr.stop:
			t.Stop()
			return nil, nil, false
		case <-t.C:
		}
		a := s.factory()
		c := s.newContext()
		if err := s.start(a, c); err != nil {
			c.cancelTimers()
			s.log.Error("unit failed to restart", zap.Error(err))
			continue
		}
		return a, c, true
	}
}

func (s *supervisor) start(a Actor, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Errorf("panic in Started: %v", r)
		}
	}()
	return a.Started(c)
}

func (s *supervisor) loop(a Actor, c *Context) *CrashError {
	for {
		select {
		case <-s.addr.stop:
			s.drain(a, c)
			if st, ok := a.(Stopper); ok {
				s.stopped(st, c)
			}
			return nil
		case env := <-s.addr.mailbox:
			if env.gen != 0 && env.gen != c.gen {
				continue // timer of a crashed incarnation
			}
			if crash := s.dispatch(a, c, env); crash != nil {
				return crash
			}
		}
	}
}

// drain handles the external messages queued before Stop. Timer messages are
// skipped so a stopping unit does not start new work.
func (s *supervisor) drain(a Actor, c *Context) {
	for n := len(s.addr.mailbox); n > 0; n-- {
		var env envelope
		select {
		case env = <-s.addr.mailbox:
		default:
			return
		}
		if env.gen != 0 {
			continue
		}
		if crash := s.dispatch(a, c, env); crash != nil {
			s.log.Error("unit crashed while draining", zap.Error(crash.Cause))
			return
		}
	}
}

func (s *supervisor) dispatch(a Actor, c *Context, env envelope) (crash *CrashError) {
	defer func() {
		if r := recover(); r != nil {
			crash = &CrashError{Unit: s.addr.name, Cause: pkgerrors.Errorf("panic: %v", r)}
		}
		if crash != nil && env.reply != nil {
			env.reply <- result{err: ErrCrashed}
		}
	}()

	if env.reply != nil {
		r, ok := a.(Replier)
		if !ok {
			env.reply <- result{err: ErrNoReply}
			return nil
		}
		val, err := r.Reply(c, env.msg)
		env.reply <- result{val: val, err: err}
		return nil
	}
	if err := a.Handle(c, env.msg); err != nil {
		return &CrashError{Unit: s.addr.name, Cause: pkgerrors.WithStack(err)}
	}
	return nil
}

func (s *supervisor) stopped(st Stopper, c *Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in Stopped", zap.Error(pkgerrors.Errorf("%v", r)))
		}
	}()
	st.Stopped(c)
}
