package internal

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment names with framework meaning.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config carries the runtime policy knobs the dispatch core consults.
// Tri-state fields are pointers: nil means "derive from Debug/Testing at the
// moment of the decision", so late configuration changes are honored.
type Config struct {
	// Env names the deployment environment. EnvDevelopment enables Debug by
	// default.
	Env string `koanf:"env"`

	// Debug enables the strict setup checks, exception propagation defaults,
	// and the redirect diagnostics.
	Debug bool `koanf:"debug"`

	// Testing marks the app as driven by a test harness.
	Testing bool `koanf:"testing"`

	// PropagateExceptions re-panics unhandled failures instead of serving a
	// generic 500. Defaults to Testing || Debug.
	PropagateExceptions *bool `koanf:"propagate_exceptions"`

	// PreserveContextOnError postpones the request-context pop after a failed
	// request so tests can inspect the exhausted context. Defaults to Debug.
	PreserveContextOnError *bool `koanf:"preserve_context_on_error"`

	// TrapHTTPErrors bypasses handler resolution for every HTTP-domain error.
	TrapHTTPErrors bool `koanf:"trap_http_errors"`

	// TrapBadRequestErrors bypasses handlers for missing-request-key 400s.
	// Defaults to Debug.
	TrapBadRequestErrors *bool `koanf:"trap_bad_request_errors"`

	// SecretKey signs the session cookie. Sessions are null without it.
	SecretKey string `koanf:"secret_key"`

	ServerName         string `koanf:"server_name"`
	ApplicationRoot    string `koanf:"application_root"`
	PreferredURLScheme string `koanf:"preferred_url_scheme"`

	SessionCookieName     string        `koanf:"session_cookie_name"`
	SessionCookieDomain   string        `koanf:"session_cookie_domain"`
	SessionCookiePath     string        `koanf:"session_cookie_path"`
	SessionCookieHTTPOnly bool          `koanf:"session_cookie_httponly"`
	SessionCookieSecure   bool          `koanf:"session_cookie_secure"`
	SessionLifetime       time.Duration `koanf:"session_lifetime"`

	// MaxContentLength rejects request bodies larger than this, when set.
	MaxContentLength int64 `koanf:"max_content_length"`
}

// DefaultConfig resolves Env and Debug from the process environment and fills
// in the opinionated defaults.
func DefaultConfig() *Config {
	envName := EnvName()
	return &Config{
		Env:                   envName,
		Debug:                 DebugFlag(envName),
		ApplicationRoot:       "/",
		PreferredURLScheme:    "http",
		SessionCookieName:     "session",
		SessionCookiePath:     "/",
		SessionCookieHTTPOnly: true,
		SessionLifetime:       31 * 24 * time.Hour,
	}
}

// EnvName reads MORTAR_ENV, defaulting to production.
func EnvName() string {
	if v := os.Getenv("MORTAR_ENV"); v != "" {
		return v
	}
	return EnvProduction
}

// DebugFlag reads MORTAR_DEBUG, defaulting to true in development.
func DebugFlag(envName string) bool {
	v := os.Getenv("MORTAR_DEBUG")
	if v == "" {
		return envName == EnvDevelopment
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return !strings.EqualFold(v, "no") && !strings.EqualFold(v, "off")
	}
	return b
}

// LoadDotenv loads .mortarenv and .env from the working directory, in that
// order, without overriding variables already set. Returns true when at least
// one file was loaded.
func LoadDotenv() bool {
	loaded := false
	for _, name := range []string{".mortarenv", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err == nil {
			loaded = true
		}
	}
	return loaded
}

// LoadConfig builds a Config from defaults, an optional YAML file, and
// MORTAR_-prefixed environment variables, highest precedence last. A "__" in
// a variable name maps to a "." in the config key.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("MORTAR_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "MORTAR_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Env == EnvDevelopment && !k.Exists("debug") {
		cfg.Debug = true
	}
	return cfg, nil
}

// SessionCookie builds the base cookie for session serialization.
func (c *Config) SessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.SessionCookieName,
		Domain:   c.SessionCookieDomain,
		Path:     c.SessionCookiePath,
		HttpOnly: c.SessionCookieHTTPOnly,
		Secure:   c.SessionCookieSecure,
	}
}

func (c *Config) propagateExceptions() bool {
	if c.PropagateExceptions != nil {
		return *c.PropagateExceptions
	}
	return c.Testing || c.Debug
}

func (c *Config) preserveContextOnError() bool {
	if c.PreserveContextOnError != nil {
		return *c.PreserveContextOnError
	}
	return c.Debug
}

func (c *Config) trapBadRequestErrors() bool {
	if c.TrapBadRequestErrors != nil {
		return *c.TrapBadRequestErrors
	}
	return c.Debug
}
