package sink

import (
	"io"
	"sync"

	"tickertracker/internal/bus"
	"tickertracker/internal/unit"
)

// ErrorPrefix starts every line written by the error stream.
const ErrorPrefix = "Error:::"

// Console writes tick lines to out, one per line. Write errors are ignored.
type Console struct {
	out    io.Writer
	header func()
}

// NewConsoleFactory returns the factory of a console sink. A non-empty header
// is written once before the first line, not again after a restart.
func NewConsoleFactory(out io.Writer, header string) unit.Factory {
	once := new(sync.Once)
	writeHeader := func() {
		once.Do(func() {
			if header != "" {
				io.WriteString(out, header+"\n")
			}
		})
	}
	return func() unit.Actor {
		return &Console{out: out, header: writeHeader}
	}
}

func (s *Console) Started(c *unit.Context) error {
	s.header()
	return c.Subscribe(bus.KindTick)
}

func (s *Console) Handle(_ *unit.Context, msg unit.Message) error {
	if ev, ok := msg.(bus.Event); ok && ev.Kind == bus.KindTick {
		io.WriteString(s.out, ev.Line+"\n")
	}
	return nil
}

// Errors writes error event lines to out with ErrorPrefix.
type Errors struct {
	out io.Writer
}

func NewErrorsFactory(out io.Writer) unit.Factory {
	return func() unit.Actor {
		return &Errors{out: out}
	}
}

func (s *Errors) Started(c *unit.Context) error {
	return c.Subscribe(bus.KindError)
}

func (s *Errors) Handle(_ *unit.Context, msg unit.Message) error {
	if ev, ok := msg.(bus.Event); ok && ev.Kind == bus.KindError {
		io.WriteString(s.out, ErrorPrefix+ev.Line+"\n")
	}
	return nil
}
