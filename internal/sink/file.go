// Package sink holds the consumers that write bus events out of the process:
// the durable file sink and the console and error streams.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"tickertracker/internal/bus"
	"tickertracker/internal/unit"
)

const (
	DefaultFlushInterval = 30 * time.Second
	DefaultMaxPending    = 4 << 20

	// FileSource tags the error events published by the file sink.
	FileSource = "file-sink"
)

// ErrPendingFull is reported when ticks are discarded because the unflushed
// output reached its cap.
var ErrPendingFull = errors.New("pending output full, discarding ticks")

// FlushError reports a failed write of pending output to the backing file.
type FlushError struct {
	Path string
	Err  error
}

func (e *FlushError) Error() string { return fmt.Sprintf("flush %s: %v", e.Path, e.Err) }

func (e *FlushError) Unwrap() error { return e.Err }

// CreateFile creates or truncates path and writes header as its first line.
func CreateFile(path, header string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	if header != "" {
		if _, err := io.WriteString(f, header+"\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header to %s: %w", path, err)
		}
	}
	return f, nil
}

type FileConfig struct {
	// Path names the destination in logs and errors.
	Path          string
	Writer        io.Writer
	FlushInterval time.Duration
	MaxPending    int
}

// flush is the self-scheduled timer message.
type flush struct{}

// File buffers tick lines and writes them to its writer on a timer. Bytes
// that could not be written stay pending for the next flush.
type File struct {
	cfg       FileConfig
	log       *zap.Logger
	pending   bytes.Buffer
	discarded int
}

func NewFileFactory(cfg FileConfig, log *zap.Logger) unit.Factory {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("path", cfg.Path))
	return func() unit.Actor {
		return &File{cfg: cfg, log: log}
	}
}

func (f *File) Started(c *unit.Context) error {
	c.SendLater(flush{}, f.cfg.FlushInterval)
	return c.Subscribe(bus.KindTick)
}

func (f *File) Handle(c *unit.Context, msg unit.Message) error {
	switch m := msg.(type) {
	case bus.Event:
		if m.Kind == bus.KindTick {
			f.append(c, m.Line)
		}
	case flush:
		f.flush(c)
		c.SendLater(flush{}, f.cfg.FlushInterval)
	}
	return nil
}

func (f *File) Stopped(c *unit.Context) {
	f.flush(c)
}

func (f *File) append(c *unit.Context, line string) {
	if f.pending.Len()+len(line)+1 > f.cfg.MaxPending {
		if f.discarded == 0 {
			f.log.Warn("pending output full", zap.Int("pending", f.pending.Len()))
			c.Publish(bus.Error(FileSource, &FlushError{Path: f.cfg.Path, Err: ErrPendingFull}))
		}
		f.discarded++
		return
	}
	f.pending.WriteString(line)
	f.pending.WriteByte('\n')
}

func (f *File) flush(c *unit.Context) {
	if f.pending.Len() == 0 {
		return
	}
	n, err := f.cfg.Writer.Write(f.pending.Bytes())
	f.pending.Next(n)
	if err != nil {
		ferr := &FlushError{Path: f.cfg.Path, Err: err}
		f.log.Warn("flush failed", zap.Error(err), zap.Int("written", n), zap.Int("pending", f.pending.Len()))
		c.Publish(bus.Error(FileSource, ferr))
		return
	}
	if f.discarded > 0 {
		f.log.Info("pending output drained", zap.Int("discarded", f.discarded))
		f.discarded = 0
	}
}
