package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level) {
	Setup(os.Stdout, "json", level)
}

// Setup installs a default logger writing to w. Format "text" selects the
// human-readable handler, anything else JSON.
func Setup(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}
