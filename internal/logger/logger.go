package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLogLevel converts a string log level to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug // default to debug
	}
}

// InitLogger creates a logger with the specified log level.
// Uses colourized text for the dev environment, otherwise output is JSON.
// Logs go to stderr so command output on stdout stays machine readable.
func InitLogger(logLevel slog.Level, environment string) *slog.Logger {
	return newLogger(os.Stderr, logLevel, environment)
}

func newLogger(w io.Writer, logLevel slog.Level, environment string) *slog.Logger {
	if environment == "dev" {
		return slog.New(
			tint.NewHandler(w, &tint.Options{
				Level:      logLevel,
				TimeFormat: time.Kitchen,
			}),
		)
	}

	return slog.New(
		slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: logLevel,
		}))
}

// Discard returns a logger that drops everything, used when callers do not supply one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
