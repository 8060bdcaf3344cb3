// Package logging provides centralized logging for the delivery daemon.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"strings"
	"sync/atomic"
)

// Severity levels beyond the slog built-ins, following the syslog scale.
// slog reserves -4..8 for debug..error; the remaining syslog severities
// slot in above error.
const (
	LevelNotice    = slog.Level(2)
	LevelCritical  = slog.Level(12)
	LevelAlert     = slog.Level(16)
	LevelEmergency = slog.Level(20)
)

// contextKey is used for storing loggers in context.
type contextKey struct{}

var loggerKey = contextKey{}

// connectionCounter is used to generate unique connection IDs.
var connectionCounter atomic.Uint64

// ParseLevel maps a configured severity name to a slog level.
// Unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	case "alert":
		return LevelAlert
	case "emergency":
		return LevelEmergency
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether level names a recognized severity.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "notice", "warn", "warning", "error", "critical", "alert", "emergency":
		return true
	}
	return false
}

// NewLogger creates a slog.Logger at the given severity floor.
// With console set, records go to stderr as text; otherwise they are
// sent to the local system log.
func NewLogger(level string, console bool) *slog.Logger {
	lvl := ParseLevel(level)

	if console {
		opts := &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: renameLevels,
		}
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	w, err := syslog.New(syslog.LOG_MAIL|syslog.LOG_INFO, "maildropd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "maildropd: cannot connect to syslog (%v), logging to stderr\n", err)
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl, ReplaceAttr: renameLevels}))
	}
	return slog.New(newSyslogHandler(w, lvl))
}

// renameLevels rewrites the synthetic level names slog would otherwise
// print for the custom severities (e.g. "INFO+2" -> "NOTICE").
func renameLevels(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch lvl {
	case LevelNotice:
		a.Value = slog.StringValue("NOTICE")
	case LevelCritical:
		a.Value = slog.StringValue("CRITICAL")
	case LevelAlert:
		a.Value = slog.StringValue("ALERT")
	case LevelEmergency:
		a.Value = slog.StringValue("EMERGENCY")
	}
	return a
}

// syslogHandler adapts a syslog.Writer to the slog.Handler interface.
type syslogHandler struct {
	writer *syslog.Writer
	level  slog.Level
	attrs  []slog.Attr
}

func newSyslogHandler(w *syslog.Writer, level slog.Level) *syslogHandler {
	return &syslogHandler{writer: w, level: level}
}

func (h *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *syslogHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		var b strings.Builder
		b.WriteString(msg)
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
			return true
		})
		msg = b.String()
	}

	switch {
	case r.Level >= LevelEmergency:
		return h.writer.Emerg(msg)
	case r.Level >= LevelAlert:
		return h.writer.Alert(msg)
	case r.Level >= LevelCritical:
		return h.writer.Crit(msg)
	case r.Level >= slog.LevelError:
		return h.writer.Err(msg)
	case r.Level >= slog.LevelWarn:
		return h.writer.Warning(msg)
	case r.Level >= LevelNotice:
		return h.writer.Notice(msg)
	case r.Level >= slog.LevelInfo:
		return h.writer.Info(msg)
	default:
		return h.writer.Debug(msg)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &syslogHandler{writer: h.writer, level: h.level, attrs: merged}
}

func (h *syslogHandler) WithGroup(name string) slog.Handler {
	// Groups are flattened; syslog output is a single line anyway.
	return h
}

// WithConnection returns a logger carrying a unique connection ID for
// log correlation across one intake connection.
func WithConnection(logger *slog.Logger) *slog.Logger {
	connID := connectionCounter.Add(1)
	return logger.With(slog.Uint64("conn_id", connID))
}

// FromContext retrieves the logger from the context.
// Returns the default logger if none is found.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// NewContext returns a new context with the logger attached.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
