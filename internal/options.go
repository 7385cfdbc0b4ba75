package internal

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mortarweb/mortar/pkg/cookie"
	"github.com/mortarweb/mortar/pkg/session"
)

// Option configures an App at construction time.
type Option func(*App)

// WithName sets the application name used in logs.
func WithName(name string) Option {
	return func(a *App) {
		if name != "" {
			a.Name = name
		}
	}
}

// WithConfig replaces the whole configuration. Usually paired with
// LoadConfig:
//
//	cfg, err := mortar.LoadConfig("config.yaml")
//	...
//	app := mortar.New(mortar.WithConfig(cfg))
func WithConfig(cfg *Config) Option {
	return func(a *App) {
		if cfg != nil {
			a.config = cfg
		}
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSecretKey sets the cookie signing secret. Without one, sessions are
// read-only null sessions. Must be at least 32 bytes.
func WithSecretKey(secret string) Option {
	return func(a *App) {
		a.config.SecretKey = secret
	}
}

// WithDebug toggles debug mode.
func WithDebug(debug bool) Option {
	return func(a *App) {
		a.config.Debug = debug
	}
}

// WithTesting marks the app as driven by a test harness. Unhandled errors
// escape as panics instead of 500 pages so tests see the original failure.
func WithTesting() Option {
	return func(a *App) {
		a.config.Testing = true
	}
}

// WithStrictSlashes disables the trailing-slash redirect suggestion: /users
// and /users/ become distinct URLs.
func WithStrictSlashes() Option {
	return func(a *App) {
		a.urlMap.StrictSlashes = true
	}
}

// WithCookieManager replaces the cookie manager built from the config.
func WithCookieManager(m *cookie.Manager) Option {
	return func(a *App) {
		if m != nil {
			a.cookies = m
		}
	}
}

// WithSessionStore keeps sessions server-side in the given store; the client
// only holds an opaque signed token.
func WithSessionStore(store session.Store) Option {
	return func(a *App) {
		if store != nil {
			a.sessions = NewStoreSessionInterface(store)
		}
	}
}

// WithSessionInterface replaces the session backend entirely.
func WithSessionInterface(si SessionInterface) Option {
	return func(a *App) {
		if si != nil {
			a.sessions = si
		}
	}
}

// WithBlueprints registers blueprints during construction.
func WithBlueprints(bps ...*Blueprint) Option {
	return func(a *App) {
		for _, bp := range bps {
			a.RegisterBlueprint(bp)
		}
	}
}

// WithStaticFiles serves fsys under urlPrefix, e.g.
// WithStaticFiles("/static", os.DirFS("./static")).
func WithStaticFiles(urlPrefix string, fsys fs.FS) Option {
	prefix := strings.TrimSuffix(urlPrefix, "/")
	server := http.StripPrefix(prefix+"/", http.FileServer(http.FS(fsys)))
	return func(a *App) {
		a.route("", prefix+"/*", func(c *RequestContext) (any, error) {
			return server, nil
		}, Endpoint("static"), Methods(http.MethodGet, http.MethodHead))
	}
}
