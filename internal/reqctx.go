package internal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mortarweb/mortar/pkg/session"
)

// AfterRequestFunc can replace or decorate the response before it is sent.
// Returning an error aborts finalization and fails the request.
type AfterRequestFunc func(c *RequestContext, resp *Response) (*Response, error)

// RequestContext binds one HTTP request to an application for the duration of
// its handling. It is pushed onto the scope's request stack before dispatch
// and popped, after the teardown callbacks ran, once the response is ready.
//
// RequestContext implements context.Context by delegating to the request's
// context, so it can be passed directly to anything that takes one: the
// Current* accessors, stores, loggers.
type RequestContext struct {
	app   *App
	scope *Scope
	ctx   context.Context

	request *http.Request

	// match and routingErr are the routing outcome, captured at construction
	// so before-request callbacks already see where the request is headed.
	match      *Match
	routingErr error

	session *session.Session
	values  map[string]any

	// respHeader collects headers set through SetHeader before a response
	// exists. They are merged into the response during finalization.
	respHeader http.Header

	afterRequest []AfterRequestFunc

	// pushedApp is the application context this request context pushed and
	// therefore owns, nil when an already-active one was reused.
	pushedApp *AppContext

	start     time.Time
	preserved bool
	formErr   error
	parsed    bool
}

// NewRequestContext builds a request context for r without pushing it. The
// routing outcome is resolved eagerly.
func (a *App) NewRequestContext(scope *Scope, r *http.Request) *RequestContext {
	c := &RequestContext{
		app:        a,
		scope:      scope,
		respHeader: make(http.Header),
		start:      time.Now(),
	}
	c.ctx = WithScope(r.Context(), scope)
	c.request = r.WithContext(c.ctx)
	c.match, c.routingErr = a.urlMap.Match(r.Method, r.URL.Path)
	return c
}

// context.Context implementation.

func (c *RequestContext) Deadline() (time.Time, bool) { return c.ctx.Deadline() }
func (c *RequestContext) Done() <-chan struct{}       { return c.ctx.Done() }
func (c *RequestContext) Err() error                  { return c.ctx.Err() }
func (c *RequestContext) Value(key any) any           { return c.ctx.Value(key) }

// App returns the application handling this request.
func (c *RequestContext) App() *App { return c.app }

// Request returns the underlying HTTP request.
func (c *RequestContext) Request() *http.Request { return c.request }

// Scope returns the context scope of this request's goroutine.
func (c *RequestContext) Scope() *Scope { return c.scope }

// Session returns the request's session. It is never nil while the context is
// pushed; without a configured secret key it is a read-only null session.
func (c *RequestContext) Session() *session.Session {
	if c.session == nil {
		panic(requestContextErrMsg)
	}
	return c.session
}

// Method returns the request method.
func (c *RequestContext) Method() string { return c.request.Method }

// Path returns the request URL path.
func (c *RequestContext) Path() string { return c.request.URL.Path }

// Endpoint returns the matched endpoint name, or "" when routing failed.
func (c *RequestContext) Endpoint() string {
	if c.match == nil {
		return ""
	}
	return c.match.Rule.Endpoint
}

// BlueprintName returns the name of the blueprint the matched rule belongs
// to, or "" for app-level rules and unrouted requests. Blueprint-scoped
// error handlers therefore never claim routing errors.
func (c *RequestContext) BlueprintName() string {
	if c.match == nil {
		return ""
	}
	return c.match.Rule.Blueprint
}

// RoutingError returns the routing failure for this request, or nil.
func (c *RequestContext) RoutingError() error { return c.routingErr }

// Push activates the request context. An application context for the same app
// is pushed first unless one is already current, and the session is opened so
// views and before-request callbacks can use it.
func (c *RequestContext) Push() {
	if top, ok := c.scope.app.top(); !ok || top.app != c.app {
		c.pushedApp = c.app.AppContext(c.scope)
		c.pushedApp.Push()
	}
	c.scope.request.push(c)

	s, err := c.app.sessions.Open(c)
	if err != nil {
		c.app.logger.ErrorContext(c, "failed to open session", "error", err)
		s = nil
	}
	if s == nil {
		s = session.NewNull()
	}
	c.session = s
}

// Pop deactivates the request context: the request teardown callbacks run
// with err (nil on the clean path), then the context leaves the stack, then
// the owned application context is popped.
func (c *RequestContext) Pop(err error) {
	defer func() {
		c.scope.request.pop(c)
		if c.pushedApp != nil {
			c.pushedApp.Pop(err)
			c.pushedApp = nil
		}
	}()
	c.app.doTeardownRequest(c, err)
}

// autoPop pops the context unless the app preserves failed request contexts
// for inspection, in which case the context stays pushed and the owner (a
// test, usually) pops it explicitly.
func (c *RequestContext) autoPop(err error) {
	if err != nil && c.app.config.preserveContextOnError() {
		c.preserved = true
		return
	}
	c.Pop(err)
}

// Preserved reports whether this context was kept alive after a failure.
func (c *RequestContext) Preserved() bool { return c.preserved }

// Param returns the path parameter extracted by routing, or "".
func (c *RequestContext) Param(name string) string {
	if c.match == nil {
		return ""
	}
	return c.match.Params[name]
}

// Query returns the first query string value for key, or "".
func (c *RequestContext) Query(key string) string {
	return c.request.URL.Query().Get(key)
}

// QueryDefault returns the first query string value for key, or def when the
// key is absent.
func (c *RequestContext) QueryDefault(key, def string) string {
	values := c.request.URL.Query()
	if _, ok := values[key]; !ok {
		return def
	}
	return values.Get(key)
}

// Form returns the first form value for key, from the body or the query
// string, or "".
func (c *RequestContext) Form(key string) string {
	c.parseForm()
	return c.request.FormValue(key)
}

// RequiredForm returns the form value for key, or a bad-request error when it
// is absent. In debug mode the error is trapped by default so the missing key
// surfaces as a raw failure instead of a generic 400 page.
func (c *RequestContext) RequiredForm(key string) (string, error) {
	c.parseForm()
	if values, ok := c.request.Form[key]; ok && len(values) > 0 {
		return values[0], nil
	}
	return "", ErrBadRequest(
		fmt.Sprintf("the browser (or proxy) sent a request that this server could "+
			"not understand: missing form value %q", key),
		WithError(fmt.Errorf("%w: form value %q", ErrMissingRequestKey, key)))
}

func (c *RequestContext) parseForm() {
	if c.parsed {
		return
	}
	c.parsed = true
	c.formErr = c.request.ParseForm()
	if c.formErr != nil {
		c.app.logger.WarnContext(c, "failed to parse form", "error", c.formErr)
	}
}

// Header returns the first request header value for name.
func (c *RequestContext) Header(name string) string {
	return c.request.Header.Get(name)
}

// SetHeader records a response header. Headers recorded here are merged into
// whatever response the request ends up producing, including error pages.
func (c *RequestContext) SetHeader(name, value string) {
	c.respHeader.Set(name, value)
}

// Set stores a request-scoped value. Unlike globals on the application
// context, these die with the request context itself.
func (c *RequestContext) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a request-scoped value stored with Set.
func (c *RequestContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// AfterThisRequest registers fn to run during finalization of this request
// only, before the blueprint and application after-request callbacks.
func (c *RequestContext) AfterThisRequest(fn AfterRequestFunc) {
	c.afterRequest = append(c.afterRequest, fn)
}

// Started returns when handling of this request began.
func (c *RequestContext) Started() time.Time { return c.start }

// Response helpers. Views return these values directly:
//
//	func hello(c *mortar.Ctx) (any, error) {
//		return c.JSON(http.StatusOK, map[string]string{"msg": "hi"})
//	}

// JSON builds an application/json response from v.
func (c *RequestContext) JSON(code int, v any) (*Response, error) {
	return NewJSONResponse(code, v)
}

// String builds a plain text response.
func (c *RequestContext) String(code int, body string) *Response {
	return NewTextResponse(code, body)
}

// NoContent builds an empty 204 response.
func (c *RequestContext) NoContent() *Response {
	resp := &Response{Header: make(http.Header)}
	resp.setStatusCode(http.StatusNoContent)
	return resp
}

// Redirect builds a redirect response to location.
func (c *RequestContext) Redirect(code int, location string) *Response {
	resp := NewTextResponse(code, "redirecting to "+location)
	resp.Header.Set("Location", location)
	return resp
}

// Render renders a component into an HTML response with the given status.
func (c *RequestContext) Render(code int, component Component) (*Response, error) {
	var buf bytes.Buffer
	if err := component.Render(c, &buf); err != nil {
		return nil, fmt.Errorf("render component: %w", err)
	}
	resp := &Response{
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   buf.Bytes(),
	}
	resp.setStatusCode(code)
	return resp, nil
}

// Cookie helpers. Writes land on respHeader and are merged into the response
// during finalization, like SetHeader.

// Cookie returns a plain request cookie value.
func (c *RequestContext) Cookie(name string) (string, error) {
	return c.app.cookies.Get(c.request, name)
}

// SetCookie sets a plain cookie with the application's cookie attributes.
func (c *RequestContext) SetCookie(name, value string, maxAge int) {
	c.app.cookies.Set(headerWriter(c.respHeader), name, value, maxAge)
}

// DeleteCookie tells the client to discard a cookie.
func (c *RequestContext) DeleteCookie(name string) {
	c.app.cookies.Delete(headerWriter(c.respHeader), name)
}

// CookieSigned returns a cookie value after verifying its signature.
func (c *RequestContext) CookieSigned(name string) (string, error) {
	return c.app.cookies.GetSigned(c.request, name)
}

// SetCookieSigned sets a tamper-evident cookie. Requires a secret key.
func (c *RequestContext) SetCookieSigned(name, value string, maxAge int) error {
	return c.app.cookies.SetSigned(headerWriter(c.respHeader), name, value, maxAge)
}

// headerWriter lets a bare header map stand in for an http.ResponseWriter
// where only Set-Cookie is written.
type headerWriter http.Header

func (h headerWriter) Header() http.Header { return http.Header(h) }

// Logging helpers that delegate to the application's logger with the request
// context attached, so context extractors see request-scoped values.

func (c *RequestContext) LogDebug(msg string, args ...any) {
	c.app.logger.DebugContext(c, msg, args...)
}

func (c *RequestContext) LogInfo(msg string, args ...any) {
	c.app.logger.InfoContext(c, msg, args...)
}

func (c *RequestContext) LogWarn(msg string, args ...any) {
	c.app.logger.WarnContext(c, msg, args...)
}

func (c *RequestContext) LogError(msg string, args ...any) {
	c.app.logger.ErrorContext(c, msg, args...)
}
