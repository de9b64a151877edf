package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sheerbytes/thrudrop/internal/termio"
)

// Options controls the handler built by NewWithOptions.
type Options struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info").
	Level string
	// Format is "text" or "json" (default: "text").
	Format string
	// Output defaults to the asynchronous console writer.
	Output io.Writer
}

// New creates a new structured logger with text output.
// app: application name (e.g., "thrudrop")
// level: one of "debug", "info", "warn", "error" (default: "info")
func New(app string, level string) *slog.Logger {
	return NewWithOptions(app, Options{Level: level})
}

// NewWithOptions creates a logger tagged with the app name and pid.
func NewWithOptions(app string, o Options) *slog.Logger {
	out := o.Output
	if out == nil {
		out = termio.Stdout()
	}
	opts := &slog.HandlerOptions{
		Level: ParseLevel(o.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(o.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler).With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to slog.Level, falling back to info.
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

// ValidLevel reports whether level names a known level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
