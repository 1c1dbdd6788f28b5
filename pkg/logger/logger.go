package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type settings struct {
	w    io.Writer
	text bool
}

// Option adjusts the handler built by New.
type Option func(*settings)

// WithText switches the handler to slog's key=value text format.
func WithText() Option {
	return func(s *settings) { s.text = true }
}

// WithFormat selects the text handler for "text" and JSON otherwise.
func WithFormat(format string) Option {
	return func(s *settings) { s.text = strings.EqualFold(strings.TrimSpace(format), "text") }
}

// WithWriter sends log lines to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.w = w
		}
	}
}

// New returns a slog.Logger configured for the given service name. Output is
// JSON on stdout unless overridden.
func New(service string, level slog.Level, opts ...Option) *slog.Logger {
	s := settings{w: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}
	ho := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if s.text {
		h = slog.NewTextHandler(s.w, ho)
	} else {
		h = slog.NewJSONHandler(s.w, ho)
	}
	return slog.New(h).With("service", service)
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog.Level,
// defaulting to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
