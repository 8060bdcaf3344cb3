// Package intake services the control socket: it accepts one
// connection at a time, reads one message until the peer closes its
// write side, and drives the message through filtering and delivery.
//
// No read deadline is enforced on a connected peer; a slow or idle
// peer stalls the loop until it disconnects. This is a known
// limitation of the one-at-a-time intake model, kept deliberately.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/maildropd/maildropd/internal/destination"
	"github.com/maildropd/maildropd/internal/filter"
	"github.com/maildropd/maildropd/internal/logging"
	"github.com/maildropd/maildropd/internal/message"
	"github.com/maildropd/maildropd/internal/metrics"
)

// Config holds everything a Loop needs. The listener is bound by the
// lifecycle manager while still privileged and handed over here.
type Config struct {
	Listener   net.Listener
	Engine     *filter.Engine
	Deliverer  *destination.Deliverer
	Collector  metrics.Collector
	Logger     *slog.Logger
	BufferSize int
}

// Loop is the serving state machine. One connection is serviced fully
// before the next accept; there is no concurrent intake.
type Loop struct {
	listener   net.Listener
	engine     *filter.Engine
	deliverer  *destination.Deliverer
	collector  metrics.Collector
	logger     *slog.Logger
	bufferSize int

	mu      sync.Mutex
	current net.Conn
}

// New creates a Loop.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 8192
	}

	return &Loop{
		listener:   cfg.Listener,
		engine:     cfg.Engine,
		deliverer:  cfg.Deliverer,
		collector:  collector,
		logger:     logger,
		bufferSize: bufSize,
	}
}

// Serve accepts and processes connections until ctx is cancelled.
// Cancellation closes the listener and any in-flight connection so
// the blocking accept or read unwinds promptly. Per-message failures
// are logged and never terminate the loop.
func (l *Loop) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.listener.Close()
		l.mu.Lock()
		if l.current != nil {
			_ = l.current.Close()
		}
		l.mu.Unlock()
	})
	defer stop()

	l.logger.Info("intake loop started", "destinations", l.deliverer.Count())

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("intake loop stopping")
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			l.logger.Warn("accept failed", "error", err)
			continue
		}

		l.handle(ctx, conn)
	}
}

// handle services one connection end to end. It never returns an
// error: every failure mode is logged and swallowed here, at the loop
// boundary, so nothing a single message does can take the daemon down.
func (l *Loop) handle(ctx context.Context, conn net.Conn) {
	l.mu.Lock()
	l.current = conn
	l.mu.Unlock()

	l.collector.ConnectionOpened()
	defer func() {
		_ = conn.Close()
		l.mu.Lock()
		l.current = nil
		l.mu.Unlock()
		l.collector.ConnectionClosed()
	}()

	logger := logging.WithConnection(l.logger)
	logger.Debug("connection accepted")

	raw, err := l.readAll(conn)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("reading message failed", "error", err)
		l.collector.MessageDropped("read_error")
		return
	}
	l.collector.MessageReceived(int64(len(raw)))

	msg, err := message.Parse(raw)
	if err != nil {
		logger.Warn("discarding malformed message", "error", err)
		l.collector.MessageDropped("parse_error")
		return
	}

	if err := msg.CheckRequired(); err != nil {
		logger.Warn("discarding message", "error", err)
		l.collector.MessageDropped("missing_header")
		return
	}

	if err := l.engine.Rewrite(msg); err != nil {
		if errors.Is(err, filter.ErrEmptyAddress) {
			logger.Warn("discarding message", "error", err)
			l.collector.MessageDropped("empty_address")
			return
		}
		logger.Warn("discarding message after filter failure", "error", err)
		l.collector.MessageDropped("filter_error")
		return
	}

	delivered := l.deliverer.DeliverAll(ctx, msg)
	logger.Info("message processed",
		"size", len(raw),
		"delivered", delivered,
		"destinations", l.deliverer.Count())
}

// readAll accumulates bytes until the peer closes the write side.
// End-of-stream is the only message delimiter.
func (l *Loop) readAll(conn net.Conn) ([]byte, error) {
	var raw bytes.Buffer
	buf := make([]byte, l.bufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			raw.Write(buf[:n])
		}
		if err == io.EOF {
			return raw.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading from connection: %w", err)
		}
	}
}
