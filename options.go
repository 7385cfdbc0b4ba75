package mortar

import (
	"context"
	"io/fs"
	"log/slog"
	"time"

	"github.com/mortarweb/mortar/internal"
	"github.com/mortarweb/mortar/pkg/cookie"
	"github.com/mortarweb/mortar/pkg/logger"
	"github.com/mortarweb/mortar/pkg/session"
)

// App options

// WithName sets the application name used in logs.
func WithName(name string) Option {
	return internal.WithName(name)
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg *Config) Option {
	return internal.WithConfig(cfg)
}

// WithLogger sets a fully custom logger.
//
// Example:
//
//	mortar.New(
//	    mortar.WithLogger(logger.New(hooks.RequestIDExtractor)),
//	)
func WithLogger(l *slog.Logger) Option {
	return internal.WithLogger(l)
}

// WithLoggerExtractors builds a default logger with the given context
// extractors: JSON in production, colorized debug output in debug mode.
func WithLoggerExtractors(extractors ...ContextExtractor) Option {
	return func(a *App) {
		if a.Config().Debug {
			internal.WithLogger(logger.NewDevelopment(extractors...))(a)
		} else {
			internal.WithLogger(logger.New(extractors...))(a)
		}
	}
}

// WithSecretKey sets the cookie signing secret. Without one, sessions are
// read-only null sessions. Must be at least 32 bytes.
func WithSecretKey(secret string) Option {
	return internal.WithSecretKey(secret)
}

// WithDebug toggles debug mode.
func WithDebug(debug bool) Option {
	return internal.WithDebug(debug)
}

// WithTesting marks the app as driven by a test harness.
func WithTesting() Option {
	return internal.WithTesting()
}

// WithStrictSlashes makes /users and /users/ distinct URLs instead of
// suggesting a redirect between them.
func WithStrictSlashes() Option {
	return internal.WithStrictSlashes()
}

// WithCookieManager replaces the cookie manager built from the config.
func WithCookieManager(m *cookie.Manager) Option {
	return internal.WithCookieManager(m)
}

// WithSessionStore keeps sessions server-side in the given store.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: addr})
//	mortar.New(
//	    mortar.WithSecretKey(secret),
//	    mortar.WithSessionStore(session.NewRedisStore(client, "myapp")),
//	)
func WithSessionStore(store session.Store) Option {
	return internal.WithSessionStore(store)
}

// WithSessionInterface replaces the session backend entirely.
func WithSessionInterface(si SessionInterface) Option {
	return internal.WithSessionInterface(si)
}

// WithBlueprints registers blueprints during construction.
func WithBlueprints(bps ...*Blueprint) Option {
	return internal.WithBlueprints(bps...)
}

// WithStaticFiles serves fsys under urlPrefix.
func WithStaticFiles(urlPrefix string, fsys fs.FS) Option {
	return internal.WithStaticFiles(urlPrefix, fsys)
}

// Route options

// Endpoint overrides the endpoint name derived from the view function.
func Endpoint(name string) RouteOption {
	return internal.Endpoint(name)
}

// Methods sets the HTTP methods a rule responds to (default GET).
func Methods(methods ...string) RouteOption {
	return internal.Methods(methods...)
}

// NoAutomaticOptions disables the synthesized OPTIONS response for a rule.
func NoAutomaticOptions() RouteOption {
	return internal.NoAutomaticOptions()
}

// Blueprint registration options

// WithURLPrefix mounts a blueprint's routes under a path prefix.
func WithURLPrefix(prefix string) RegisterOption {
	return internal.WithURLPrefix(prefix)
}

// Run options

// Address sets the HTTP server address. Defaults to ":8080".
func Address(addr string) RunOption {
	return internal.Address(addr)
}

// ShutdownTimeout sets the timeout for graceful shutdown.
func ShutdownTimeout(d time.Duration) RunOption {
	return internal.ShutdownTimeout(d)
}

// StartupHook runs before the server starts listening.
func StartupHook(fn func(context.Context) error) RunOption {
	return internal.StartupHook(fn)
}

// ShutdownHook runs during graceful shutdown.
func ShutdownHook(fn func(context.Context) error) RunOption {
	return internal.ShutdownHook(fn)
}

// BaseContext binds the server lifetime to ctx.
func BaseContext(ctx context.Context) RunOption {
	return internal.BaseContext(ctx)
}
