package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New creates a JSON-formatted logger with optional context extractors.
func New(extractors ...ContextExtractor) *slog.Logger {
	log := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(WithExtractors(log, extractors...))
}

// NewDevelopment creates a colorized, human-readable logger at debug level.
// Meant for local development; production should stick with New.
func NewDevelopment(extractors ...ContextExtractor) *slog.Logger {
	log := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})
	return slog.New(WithExtractors(log, extractors...))
}
