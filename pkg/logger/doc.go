// Package logger provides structured logging built on log/slog with
// context-based attribute injection.
//
// Handlers created here can be decorated with ContextExtractor functions
// that pull request-scoped values (such as request IDs) out of a
// context.Context on every log call:
//
//	log := logger.New(hooks.RequestIDExtractor)
//	log.InfoContext(ctx, "request processed", slog.Int("status", 200))
//
// New produces JSON output for production, NewDevelopment a colorized
// debug-level handler for local work, and NewNope a discard logger for
// tests.
package logger
