// Package logging builds the structured run log for ci-runner.
//
// Run events go through log/slog. When a log file is configured, records
// are written there through a rotating lumberjack writer; with --verbose
// they are mirrored to stderr as well. With neither, records are dropped.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment variables overriding log rotation.
const (
	EnvMaxSize    = "CI_RUNNER_LOG_MAX_SIZE"
	EnvMaxBackups = "CI_RUNNER_LOG_MAX_BACKUPS"
	EnvMaxAge     = "CI_RUNNER_LOG_MAX_AGE"
)

// Attribute keys shared by every run event.
const (
	KeyRunID    = "run_id"
	KeyStep     = "step"
	KeyCommand  = "command"
	KeyExitCode = "exit_code"
	KeyDuration = "duration"
	KeyState    = "state"
)

// Options configures New.
type Options struct {
	// FilePath enables file logging when non-empty.
	FilePath string

	// Verbose mirrors records to Stderr at debug level.
	Verbose bool

	// Stderr receives verbose output. Defaults to os.Stderr.
	Stderr io.Writer

	// Getenv reads rotation overrides. Defaults to os.Getenv.
	Getenv func(string) string
}

// Logger wraps a slog.Logger and owns the file writer behind it.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a Logger from opts.
func New(opts Options) (*Logger, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	l := &Logger{}
	var handlers []slog.Handler

	if opts.Verbose {
		handlers = append(handlers, slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := newRotatingWriter(opts.FilePath, opts.Getenv)
		l.closer = lj

		handlers = append(handlers, slog.NewTextHandler(lj, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
				}
				return a
			},
		}))
	}

	switch len(handlers) {
	case 0:
		l.Logger = slog.New(discardHandler{})
	case 1:
		l.Logger = slog.New(handlers[0])
	default:
		l.Logger = slog.New(&multiHandler{handlers: handlers})
	}
	return l, nil
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(discardHandler{})}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// newRotatingWriter creates a lumberjack writer, applying environment
// overrides to the rotation defaults.
func newRotatingWriter(path string, getenv func(string) string) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    1,     // megabytes
		MaxBackups: 2,     // rotated files kept
		MaxAge:     30,    // days
		Compress:   false, // rotated files stay plain text
	}

	if n, ok := envInt(getenv, EnvMaxSize); ok && n > 0 {
		lj.MaxSize = n
	}
	if n, ok := envInt(getenv, EnvMaxBackups); ok && n >= 0 {
		lj.MaxBackups = n
	}
	if n, ok := envInt(getenv, EnvMaxAge); ok && n > 0 {
		lj.MaxAge = n
	}
	return lj
}

func envInt(getenv func(string) string, key string) (int, bool) {
	s := getenv(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// multiHandler fans out records to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool { return false }

func (discardHandler) Handle(context.Context, slog.Record) error { return nil }

func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler { return d }

func (d discardHandler) WithGroup(string) slog.Handler { return d }
