package logger

import "log/slog"

// NewNope creates a logger that discards everything. Handy as a default when
// logging is not configured, and in tests that should stay quiet.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
