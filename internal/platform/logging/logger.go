package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pscheid92/starpush/internal/platform/correlation"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// InitLogger installs the default logger writing to stdout.
// level: "debug", "info", "warn", "error" (anything else means "info")
// format: "json" or "text" (anything else means "text")
func InitLogger(level, format string) *slog.Logger {
	Logger = New(os.Stdout, level, format)
	slog.SetDefault(Logger)
	return Logger
}

// New builds a correlation-aware logger on w without touching the default.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler)).With("service", "starpush")
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
