package internal

import (
	"context"

	"github.com/mortarweb/mortar/pkg/session"
)

const appContextErrMsg = "mortar: working outside of application context; " +
	"push an application context with app.AppContext(scope) (a request pushes one automatically)"

const requestContextErrMsg = "mortar: working outside of request context; " +
	"this functionality needs an active HTTP request"

// Scope owns the pair of context stacks for one worker. Every inbound request
// gets its own Scope, so no locking is needed for push/pop/lookup. A Scope
// must never be mutated from two goroutines at once.
type Scope struct {
	app     contextStack[*AppContext]
	request contextStack[*RequestContext]
}

// NewScope creates an empty scope. Request handling allocates scopes
// internally; call this directly for scripts, jobs, or tests that need an
// application context without a request.
func NewScope() *Scope {
	return &Scope{}
}

// AppContextTop returns the current application context, if any.
func (s *Scope) AppContextTop() (*AppContext, bool) {
	return s.app.top()
}

// RequestContextTop returns the current request context, if any.
func (s *Scope) RequestContextTop() (*RequestContext, bool) {
	return s.request.top()
}

type scopeKey struct{}

// WithScope attaches a scope to ctx so the Current* accessors can find it in
// deeply nested code without explicit parameter threading.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom extracts the scope attached to ctx, or nil.
func ScopeFrom(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// CurrentApp returns the application bound to the current application
// context. It panics with a descriptive message when no application context
// is active: failing loudly here beats a nil dereference three frames later,
// since this is the most common integration mistake.
func CurrentApp(ctx context.Context) *App {
	if s := ScopeFrom(ctx); s != nil {
		if ac, ok := s.app.top(); ok {
			return ac.app
		}
	}
	panic(appContextErrMsg)
}

// CurrentAppContext returns the current application context, panicking when
// none is active.
func CurrentAppContext(ctx context.Context) *AppContext {
	if s := ScopeFrom(ctx); s != nil {
		if ac, ok := s.app.top(); ok {
			return ac
		}
	}
	panic(appContextErrMsg)
}

// CurrentRequest returns the current request context, panicking when none is
// active.
func CurrentRequest(ctx context.Context) *RequestContext {
	if s := ScopeFrom(ctx); s != nil {
		if rc, ok := s.request.top(); ok {
			return rc
		}
	}
	panic(requestContextErrMsg)
}

// G returns the globals scratch object of the current application context.
func G(ctx context.Context) *Globals {
	return CurrentAppContext(ctx).G()
}

// CurrentSession returns the session of the current request context.
func CurrentSession(ctx context.Context) *session.Session {
	return CurrentRequest(ctx).Session()
}

// HasAppContext reports whether an application context is active on ctx.
func HasAppContext(ctx context.Context) bool {
	if s := ScopeFrom(ctx); s != nil {
		_, ok := s.app.top()
		return ok
	}
	return false
}

// HasRequestContext reports whether a request context is active on ctx.
func HasRequestContext(ctx context.Context) bool {
	if s := ScopeFrom(ctx); s != nil {
		_, ok := s.request.top()
		return ok
	}
	return false
}
