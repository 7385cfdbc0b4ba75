package internal

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// knownMethods is the probe set for computing allowed methods on a path.
var knownMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Rule describes one registered URL rule.
type Rule struct {
	// Endpoint is the name views are registered under, unique per map.
	Endpoint string

	// Pattern is the chi-style path pattern, e.g. "/users/{id}".
	Pattern string

	// Blueprint is the name of the blueprint that registered the rule, or "".
	Blueprint string

	// Methods the rule responds to, upper-cased.
	Methods []string

	// ProvideAutomaticOptions marks rules that answer OPTIONS requests with a
	// synthesized allowed-methods response instead of a view.
	ProvideAutomaticOptions bool

	// NoAutoOptions opts the rule out of the automatic OPTIONS behavior.
	NoAutoOptions bool
}

// Match is a successful routing outcome: the matched rule plus the path
// parameters extracted from the URL.
type Match struct {
	Rule   *Rule
	Params map[string]string
}

// URLMap matches inbound method+path pairs against registered rules. The
// trie matching itself is delegated to chi; the map only keeps the rule
// bookkeeping chi does not expose: endpoint names, allowed-method probing,
// and trailing-slash redirect suggestions.
type URLMap struct {
	mux     *chi.Mux
	rules   []*Rule
	byRoute map[string]map[string]*Rule // method -> pattern -> rule

	// StrictSlashes disables the trailing-slash redirect suggestion.
	StrictSlashes bool
}

// NewURLMap creates an empty URL map.
func NewURLMap() *URLMap {
	return &URLMap{
		mux:     chi.NewMux(),
		byRoute: make(map[string]map[string]*Rule),
	}
}

var noopHandler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// Add registers a rule. Methods default to GET; unless OPTIONS is registered
// explicitly, the rule answers OPTIONS automatically.
func (m *URLMap) Add(rule *Rule) error {
	if rule.Pattern == "" || !strings.HasPrefix(rule.Pattern, "/") {
		return fmt.Errorf("url map: pattern %q must begin with a slash", rule.Pattern)
	}
	if len(rule.Methods) == 0 {
		rule.Methods = []string{http.MethodGet}
	}
	for i, meth := range rule.Methods {
		rule.Methods[i] = strings.ToUpper(meth)
	}

	hasOptions := false
	for _, meth := range rule.Methods {
		if meth == http.MethodOptions {
			hasOptions = true
		}
	}

	for _, meth := range rule.Methods {
		if existing := m.route(meth, rule.Pattern); existing != nil {
			return fmt.Errorf("url map: %s %s already registered for endpoint %q",
				meth, rule.Pattern, existing.Endpoint)
		}
	}
	for _, meth := range rule.Methods {
		m.setRoute(meth, rule)
	}

	// Unless the rule handles OPTIONS itself, it answers OPTIONS with a
	// synthesized allowed-methods response. When several rules share a
	// pattern, the first one registered owns the OPTIONS slot.
	if !hasOptions && !rule.NoAutoOptions {
		rule.ProvideAutomaticOptions = true
		if m.route(http.MethodOptions, rule.Pattern) == nil {
			rule.Methods = append(rule.Methods, http.MethodOptions)
			m.setRoute(http.MethodOptions, rule)
		}
	}

	m.rules = append(m.rules, rule)
	return nil
}

func (m *URLMap) route(method, pattern string) *Rule {
	return m.byRoute[method][pattern]
}

func (m *URLMap) setRoute(method string, rule *Rule) {
	byPattern, ok := m.byRoute[method]
	if !ok {
		byPattern = make(map[string]*Rule)
		m.byRoute[method] = byPattern
	}
	byPattern[rule.Pattern] = rule
	m.mux.Method(method, rule.Pattern, noopHandler)
}

// Rules returns all registered rules.
func (m *URLMap) Rules() []*Rule {
	return m.rules
}

// Match resolves method+path to a Match, or to a routing error: a
// *RedirectError when the trailing-slash variant of the path would match, an
// *HTTPError 405 carrying the allowed methods, or an *HTTPError 404.
func (m *URLMap) Match(method, path string) (*Match, error) {
	method = strings.ToUpper(method)

	rctx := chi.NewRouteContext()
	if m.mux.Match(rctx, method, path) {
		rule := m.byRoute[method][rctx.RoutePattern()]
		if rule == nil {
			return nil, fmt.Errorf("url map: matched pattern %q has no rule for %s",
				rctx.RoutePattern(), method)
		}
		params := make(map[string]string, len(rctx.URLParams.Keys))
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			params[key] = rctx.URLParams.Values[i]
		}
		return &Match{Rule: rule, Params: params}, nil
	}

	if !m.StrictSlashes {
		if alt := toggleTrailingSlash(path); alt != "" && m.matchesAnyMethod(alt) {
			return nil, &RedirectError{Location: alt}
		}
	}

	if allowed := m.AllowedMethods(path); len(allowed) > 0 {
		return nil, ErrMethodNotAllowed(allowed)
	}

	return nil, ErrNotFound("the requested URL was not found on the server")
}

// AllowedMethods probes every known method against path and returns the ones
// that would match, sorted. chi only answers yes/no per method, so the Allow
// header for 405s and automatic OPTIONS is assembled here.
func (m *URLMap) AllowedMethods(path string) []string {
	var allowed []string
	for _, meth := range knownMethods {
		rctx := chi.NewRouteContext()
		if m.mux.Match(rctx, meth, path) {
			allowed = append(allowed, meth)
		}
	}
	sort.Strings(allowed)
	return allowed
}

func (m *URLMap) matchesAnyMethod(path string) bool {
	for _, meth := range knownMethods {
		rctx := chi.NewRouteContext()
		if m.mux.Match(rctx, meth, path) {
			return true
		}
	}
	return false
}

func toggleTrailingSlash(path string) string {
	if path == "/" || path == "" {
		return ""
	}
	if strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/")
	}
	return path + "/"
}
