// Package gateway is the HTTP surface of the tracker: the tail of the
// history cache, a health probe and a websocket stream of live ticks.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"tickertracker/internal/bus"
)

// Tailer answers "last n lines" queries.
type Tailer interface {
	Last(ctx context.Context, n int) ([]string, error)
}

type Config struct {
	RequestTimeout time.Duration
	// StreamBuffer is the number of ticks queued per stream client before
	// further ticks are dropped for that client.
	StreamBuffer int
	WriteTimeout time.Duration
}

type Server struct {
	tail Tailer
	bus  *bus.Bus
	cfg  Config
	log  *zap.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

// New returns a gateway over tail. A nil bus disables /stream.
func New(tail Tailer, b *bus.Bus, cfg Config, log *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{tail: tail, bus: b, cfg: cfg, log: log, closing: make(chan struct{})}
}

func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	api.HandleFunc("GET /tail/{count}", s.handleTail)

	root := http.NewServeMux()
	if s.bus != nil {
		// The stream hijacks the connection, so it stays outside the
		// response-wrapping middleware.
		root.HandleFunc("GET /stream", s.handleStream)
	}
	root.Handle("/", withJSONHeaders(withGzip(recoverPanic(api))))
	return withRequestID(s.log, root)
}

// HTTPServer wraps Handler with the listener timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// CloseStreams ends every open stream. http.Server.Shutdown does not wait for
// hijacked connections, so call this before it.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("count"))
	if err != nil || n <= 0 {
		http.Error(w, "count must be a positive integer", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	lines, err := s.tail.Last(ctx, n)
	if err != nil {
		s.log.Warn("tail query failed", zap.Int("count", n), zap.Error(err))
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, "history unavailable", status)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(lines)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Listener deadlines must not cut a long-lived stream.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	sub := bus.NewChan(s.cfg.StreamBuffer)
	s.bus.Subscribe(bus.KindTick, sub)
	defer func() {
		s.bus.UnsubscribeAll(sub)
		sub.Close()
	}()
	s.log.Debug("stream client connected", zap.String("remote", r.RemoteAddr))

	ctx := conn.CloseRead(context.Background())
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev := <-sub.C():
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, []byte(ev.Line))
			cancel()
			if err != nil {
				s.log.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}
