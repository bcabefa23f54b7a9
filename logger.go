package factdb

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/factdb/schema"
)

// Logger wraps slog.Logger with factdb-specific helpers.
// Field names are consistent across all helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler to stderr at Info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithSort adds a sort field to the logger.
func (l *Logger) WithSort(sort string) *Logger {
	return &Logger{
		Logger: l.Logger.With("sort", sort),
	}
}

// LogOpen logs opening a database.
func (l *Logger) LogOpen(backend Backend, dir string, sorts int, err error) {
	if err != nil {
		l.Error("open failed",
			"backend", backend,
			"dir", dir,
			"error", err,
		)
		return
	}
	l.Info("database opened",
		"backend", backend,
		"dir", dir,
		"sorts", sorts,
	)
}

// LogSortRegistered logs a sort registration.
func (l *Logger) LogSortRegistered(s *schema.Sort) {
	l.Info("sort registered",
		"sort", s.Name(),
		"kind", s.Kind().String(),
		"id", s.ID(),
		"inline", !s.UseDictionary(),
	)
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(pending int, d time.Duration, err error) {
	if err != nil {
		l.Error("commit failed",
			"pending", pending,
			"error", err,
		)
		return
	}
	l.Debug("commit completed",
		"pending", pending,
		"duration", d,
	)
}

// LogPreload logs a bulk preload of one edge index.
func (l *Logger) LogPreload(sort string, rows int, d time.Duration, err error) {
	if err != nil {
		l.Error("preload failed",
			"sort", sort,
			"error", err,
		)
		return
	}
	l.Info("preload completed",
		"sort", sort,
		"rows", rows,
		"duration", d,
	)
}

// LogClose logs closing the database.
func (l *Logger) LogClose(err error) {
	if err != nil {
		l.Error("close failed", "error", err)
		return
	}
	l.Info("database closed")
}

// badgerLogger routes badger's internal log output through a Logger.
type badgerLogger struct {
	l *Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
