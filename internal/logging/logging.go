// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Context-based session-id extraction for filtering
// - Dynamic filter-based logging via slog-logfilter library
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	logfilter "github.com/jmylchreest/slog-logfilter"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

// SessionIDKey is the context key for the automation session id.
const SessionIDKey ContextKey = "log_session_id"

// WithSessionID adds a session id to the context for logging.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionID extracts the session id from context.
func GetSessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(SessionIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger with the session id from context added as an attribute.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	if sessionID := GetSessionID(ctx); sessionID != "" {
		return logger.With("session_id", sessionID)
	}
	return logger
}

// registerContextExtractors registers the context extractors for filtering.
func registerContextExtractors() {
	logfilter.RegisterContextExtractor("session_id", func(ctx context.Context) (string, bool) {
		if ctx == nil {
			return "", false
		}
		if v := ctx.Value(SessionIDKey); v != nil {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
		return "", false
	})
}

// New creates a new configured logger using slog-logfilter.
// Format is determined by:
// 1. LOG_FORMAT env var (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info)
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	format := "json"
	if logFormat == "text" || (logFormat == "" && isatty(os.Stdout)) {
		format = "text"
	}

	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	registerContextExtractors()

	return logfilter.New(
		logfilter.WithLevel(level),
		logfilter.WithFormat(format),
		logfilter.WithOutput(os.Stdout),
		logfilter.WithSource(true),
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a new logger and sets it as the default slog logger.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
