package veritas

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with veritas-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithArtifact adds the artifact directory field to the logger.
func (l *Logger) WithArtifact(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("artifact", dir),
	}
}

// WithK adds a k (result count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogOpen logs an artifact open.
func (l *Logger) LogOpen(ctx context.Context, dir, mode string, warnings int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"artifact", dir,
			"mode", mode,
			"error", err,
		)
	} else if warnings > 0 {
		l.WarnContext(ctx, "open completed with warnings",
			"artifact", dir,
			"mode", mode,
			"warnings", warnings,
		)
	} else {
		l.InfoContext(ctx, "open completed",
			"artifact", dir,
			"mode", mode,
		)
	}
}

// LogRetrieve logs a retrieval query.
func (l *Logger) LogRetrieve(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "retrieve failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "retrieve completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogFetch logs a batch fetch.
func (l *Logger) LogFetch(ctx context.Context, requested, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "fetch completed with failures",
			"requested", requested,
			"failed", failed,
		)
	} else {
		l.DebugContext(ctx, "fetch completed",
			"requested", requested,
		)
	}
}

// LogCommit logs a build commit.
func (l *Logger) LogCommit(ctx context.Context, dir string, docs, chunks int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"artifact", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "commit completed",
			"artifact", dir,
			"docs", docs,
			"chunks", chunks,
			"elapsed", elapsed,
		)
	}
}
