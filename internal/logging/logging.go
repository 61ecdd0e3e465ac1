// Package logging configures the process-wide slog logger used by the
// coordinator daemon and CLI.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures a global slog logger. JSON by default; text if
// WORKGRAPH_LOG_FORMAT=text.
func Init(component string) *slog.Logger {
	text := strings.ToLower(os.Getenv("WORKGRAPH_LOG_FORMAT")) == "text"
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("component", component)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", !text)
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("WORKGRAPH_LOG_LEVEL")) {
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
