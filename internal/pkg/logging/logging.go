package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level  string
	Format string
}

// New builds the process logger. Format is pretty, json or text.
func New(opts Options) *slog.Logger {
	return NewWithWriter(os.Stdout, opts)
}

func NewWithWriter(out io.Writer, opts Options) *slog.Logger {
	handlerOpts := slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, &handlerOpts)
	case "text":
		handler = slog.NewTextHandler(out, &handlerOpts)
	default:
		handler = NewPrettyHandler(out, PrettyHandlerOptions{SlogOpts: handlerOpts})
	}
	return slog.New(handler)
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(level string) slog.Level {
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
