package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
)

// Errors.
var (
	ErrNotFound = errors.New("cookie: not found")
	ErrNoSecret = errors.New("cookie: secret required")
	ErrBadSig   = errors.New("cookie: invalid signature")
)

// HeaderWriter is the subset of http.ResponseWriter the manager needs to set
// cookies. Buffered response values satisfy it too, so cookies can be placed
// on a response before anything reaches the wire.
type HeaderWriter interface {
	Header() http.Header
}

// Manager handles cookie reading and writing with optional HMAC signing.
type Manager struct {
	secret   []byte // nil = signing unavailable
	domain   string
	path     string
	secure   bool
	httpOnly bool
	sameSite http.SameSite
}

// Option configures the Manager.
type Option func(*Manager)

// New creates a cookie Manager with the given options.
func New(opts ...Option) *Manager {
	m := &Manager{
		path:     "/",
		httpOnly: true,
		sameSite: http.SameSiteLaxMode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithSecret sets the signing secret. Must be at least 32 bytes.
func WithSecret(secret string) Option {
	return func(m *Manager) {
		if len(secret) >= 32 {
			m.secret = []byte(secret)
		}
	}
}

// WithDomain sets the cookie domain.
func WithDomain(domain string) Option {
	return func(m *Manager) {
		m.domain = domain
	}
}

// WithPath sets the cookie path.
func WithPath(path string) Option {
	return func(m *Manager) {
		m.path = path
	}
}

// WithSecure sets the Secure flag.
func WithSecure(secure bool) Option {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithHTTPOnly sets the HttpOnly flag.
func WithHTTPOnly(httpOnly bool) Option {
	return func(m *Manager) {
		m.httpOnly = httpOnly
	}
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(ss http.SameSite) Option {
	return func(m *Manager) {
		m.sameSite = ss
	}
}

// CanSign reports whether a usable secret is configured.
func (m *Manager) CanSign() bool {
	return m.secret != nil
}

// Get returns a plain cookie value.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// Set sets a plain cookie.
func (m *Manager) Set(w HeaderWriter, name, value string, maxAge int) {
	setCookie(w, m.cookie(name, value, maxAge))
}

// Delete removes a cookie.
func (m *Manager) Delete(w HeaderWriter, name string) {
	setCookie(w, m.cookie(name, "", -1))
}

// GetSigned returns a signed cookie value.
// Returns ErrNoSecret if no secret is configured.
// Returns ErrBadSig if signature verification fails.
func (m *Manager) GetSigned(r *http.Request, name string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}

	raw, err := m.Get(r, name)
	if err != nil {
		return "", err
	}
	value, err := m.Verify(raw)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSigned sets a signed cookie.
// Returns ErrNoSecret if no secret is configured.
func (m *Manager) SetSigned(w HeaderWriter, name, value string, maxAge int) error {
	encoded, err := m.Sign(value)
	if err != nil {
		return err
	}
	setCookie(w, m.cookie(name, encoded, maxAge))
	return nil
}

// Sign encodes value as base64(value).base64(hmac-sha256(value)).
func (m *Manager) Sign(value string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(value))
	sig := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString([]byte(value)) +
		"." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks a signed encoding and returns the embedded value.
func (m *Manager) Verify(encoded string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}

	// Format: base64(value).base64(signature)
	dot := -1
	for i := range encoded {
		if encoded[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return "", ErrBadSig
	}

	value, err := base64.RawURLEncoding.DecodeString(encoded[:dot])
	if err != nil {
		return "", ErrBadSig
	}
	sig, err := base64.RawURLEncoding.DecodeString(encoded[dot+1:])
	if err != nil {
		return "", ErrBadSig
	}

	mac := hmac.New(sha256.New, m.secret)
	mac.Write(value)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", ErrBadSig
	}
	return string(value), nil
}

// cookie creates a cookie with the manager's defaults.
func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   m.domain,
		Path:     m.path,
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: m.httpOnly,
		SameSite: m.sameSite,
	}
}

func setCookie(w HeaderWriter, c *http.Cookie) {
	if v := c.String(); v != "" {
		w.Header().Add("Set-Cookie", v)
	}
}
