// Package keyholderlog is the proxy's diagnostic sink: an append-only,
// concurrency-safe event log. It wraps log/slog the way the reference
// implementation targets the system log's auth facility, while keeping
// the sink itself an abstract concern the rest of the proxy never
// depends on directly.
package keyholderlog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Options configures the global diagnostic sink.
type Options struct {
	// JSONFormat emits structured JSON records instead of the default
	// human-readable text; useful when the proxy runs under a
	// supervisor that captures stdout/stderr into a log aggregator.
	JSONFormat bool
	// Debug enables debug-level events in addition to info/warn/error.
	Debug bool
	// Syslog routes events to the system log's auth facility in
	// addition to stderr, when supported by the platform (see
	// sink_linux.go / sink_other.go).
	Syslog bool
	// Output overrides the stream diagnostics are written to.
	// Defaults to os.Stderr.
	Output io.Writer
}

// Init installs the global diagnostic sink. It is called once at
// startup from the command's PersistentPreRun.
func Init(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(out, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(out, handlerOpts))
	}

	if opts.Syslog {
		sh, err := newSyslogHandler(level)
		if err != nil {
			return err
		}
		if sh != nil {
			handlers = append(handlers, sh)
		}
	}

	logger = slog.New(&multiHandler{handlers: handlers})
	slog.SetDefault(logger)
	return nil
}

// Debug logs a diagnostic event at debug severity.
func Debug(msg string, args ...any) { logger.Debug(msg, args...) }

// Info logs a diagnostic event at info severity.
func Info(msg string, args ...any) { logger.Info(msg, args...) }

// Warn logs a diagnostic event at warn severity.
func Warn(msg string, args ...any) { logger.Warn(msg, args...) }

// Error logs a diagnostic event at error severity.
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// With returns a logger scoped with the given key/value attributes,
// for callers that want to attach session-scoped context (peer user,
// remote fingerprint) to every subsequent event.
func With(args ...any) *slog.Logger { return logger.With(args...) }

// multiHandler fans a record out to every configured handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
