package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config describes where and how a SlogLogger writes
type Config struct {
	// Path is the log file; empty writes to Writer
	Path string
	// Writer is used when Path is empty (default os.Stderr)
	Writer io.Writer
	// Format is json or text
	Format Format
	// Level is the minimum level written
	Level Level
	// MaxSize is the file size in bytes that triggers rotation (0 = never)
	MaxSize int64
	// MaxBackups is the number of rotated files kept
	MaxBackups int
}

// SlogLogger implements Logger on top of log/slog.
// Text output goes through tint, JSON output through slog's JSON handler.
type SlogLogger struct {
	logger *slog.Logger
	closer io.Closer
}

// New creates a SlogLogger from cfg
func New(cfg Config) (*SlogLogger, error) {
	var (
		w       io.Writer
		closer  io.Closer
		noColor = true
	)

	if cfg.Path != "" {
		rf, err := OpenRotatingFile(cfg.Path, cfg.MaxSize, cfg.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = rf, rf
	} else {
		w = cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level.slogLevel()})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level.slogLevel(),
			TimeFormat: timeFormat,
			NoColor:    noColor,
		})
	}

	return &SlogLogger{logger: slog.New(handler), closer: closer}, nil
}

// NewFromHandler wraps an existing slog handler
func NewFromHandler(h slog.Handler) *SlogLogger {
	return &SlogLogger{logger: slog.New(h)}
}

func (l *SlogLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs(fields)...)
}

func (l *SlogLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs(fields)...)
}

func (l *SlogLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs(fields)...)
}

func (l *SlogLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	a := attrs(fields)
	if err != nil {
		a = append(a, tint.Err(err))
	}
	l.logger.LogAttrs(ctx, slog.LevelError, msg, a...)
}

// WithFields returns a child logger sharing the same output.
// Closing the child is a no-op; close the root logger instead.
func (l *SlogLogger) WithFields(fields Fields) Logger {
	a := attrs(fields)
	args := make([]any, len(a))
	for i := range a {
		args[i] = a[i]
	}
	return &SlogLogger{logger: l.logger.With(args...)}
}

// Close closes the log file, if any
func (l *SlogLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// attrs converts fields to attributes in key order so output is stable
func attrs(fields Fields) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}
