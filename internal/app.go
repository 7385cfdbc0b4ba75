package internal

import (
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mortarweb/mortar/pkg/cookie"
	"github.com/mortarweb/mortar/pkg/logger"
)

// ViewFunc handles a matched request. The return value goes through response
// coercion: *Response, string, []byte, http.Handler, or a []any tuple of
// (body, status, headers).
type ViewFunc func(c *RequestContext) (any, error)

// BeforeRequestFunc runs before dispatch. A non-nil return value becomes the
// response and the view never runs.
type BeforeRequestFunc func(c *RequestContext) (any, error)

// BeforeFirstRequestFunc runs once, before the very first request the app
// serves. An error fails that request and the callbacks are retried on the
// next one.
type BeforeFirstRequestFunc func(c *RequestContext) error

// TeardownRequestFunc runs when the request context is popped, with the
// unhandled error that failed the request, or nil. Teardown always runs,
// whatever happened during dispatch.
type TeardownRequestFunc func(c *RequestContext, err error)

// AppTeardownFunc runs when an application context is finally popped.
type AppTeardownFunc func(err error)

// URLValuePreprocessorFunc inspects or mutates the matched path parameters
// before the before-request callbacks run.
type URLValuePreprocessorFunc func(endpoint string, params map[string]string)

// App is the central registry: URL rules, view functions, request lifecycle
// callbacks, and error handlers all hang off it. One App serves many
// concurrent requests; all registration must happen before serving starts.
type App struct {
	// Name identifies the app in logs.
	Name string

	config   *Config
	logger   *slog.Logger
	cookies  *cookie.Manager
	sessions SessionInterface
	urlMap   *URLMap

	viewFuncs  map[string]ViewFunc
	blueprints map[string]*Blueprint

	errorHandlers *errorRegistry

	beforeFirstRequest    []BeforeFirstRequestFunc
	beforeRequest         map[string][]BeforeRequestFunc
	afterRequest          map[string][]AfterRequestFunc
	teardownRequest       map[string][]TeardownRequestFunc
	urlValuePreprocessors map[string][]URLValuePreprocessorFunc
	teardownAppContext    []AppTeardownFunc

	firstRequestMu  sync.Mutex
	gotFirstRequest atomic.Bool

	// Lifecycle signals. Receivers run synchronously on the goroutine that
	// triggers them.
	RequestStarted        Signal[*RequestContext]
	RequestFinished       Signal[ResponseEvent]
	GotRequestException   Signal[ExceptionEvent]
	RequestTearingDown    Signal[TeardownEvent]
	AppContextTearingDown Signal[TeardownEvent]
	AppContextPushed      Signal[*AppContext]
	AppContextPopped      Signal[*AppContext]
}

// New creates an application with the given options applied over the
// defaults: production config resolved from the environment, a JSON logger,
// and client-side cookie sessions.
func New(opts ...Option) *App {
	a := &App{
		Name:                  "mortar",
		config:                DefaultConfig(),
		urlMap:                NewURLMap(),
		viewFuncs:             make(map[string]ViewFunc),
		blueprints:            make(map[string]*Blueprint),
		errorHandlers:         newErrorRegistry(),
		beforeRequest:         make(map[string][]BeforeRequestFunc),
		afterRequest:          make(map[string][]AfterRequestFunc),
		teardownRequest:       make(map[string][]TeardownRequestFunc),
		urlValuePreprocessors: make(map[string][]URLValuePreprocessorFunc),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		if a.config.Debug {
			a.logger = logger.NewDevelopment()
		} else {
			a.logger = logger.New()
		}
	}
	if a.cookies == nil {
		a.cookies = cookie.New(
			cookie.WithSecret(a.config.SecretKey),
			cookie.WithDomain(a.config.SessionCookieDomain),
			cookie.WithPath(a.config.SessionCookiePath),
			cookie.WithSecure(a.config.SessionCookieSecure),
			cookie.WithHTTPOnly(a.config.SessionCookieHTTPOnly),
		)
	}
	if a.sessions == nil {
		a.sessions = NewCookieSessionInterface()
	}
	return a
}

// Config returns the app's configuration. Mutating it after the first
// request was served is not synchronized.
func (a *App) Config() *Config { return a.config }

// Logger returns the app's structured logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Debug reports whether debug mode is on.
func (a *App) Debug() bool { return a.config.Debug }

// Testing reports whether the app is marked as under test.
func (a *App) Testing() bool { return a.config.Testing }

// GotFirstRequest reports whether the app has started serving.
func (a *App) GotFirstRequest() bool { return a.gotFirstRequest.Load() }

// URLMap exposes the routing table, mainly for introspection in tests and
// tooling.
func (a *App) URLMap() *URLMap { return a.urlMap }

// checkSetup panics in debug mode when setup happens after the first request
// was handled. Such late registration is almost always a bug: the routes or
// callbacks silently apply to some requests and not others depending on
// timing.
func (a *App) checkSetup() {
	if a.config.Debug && a.gotFirstRequest.Load() {
		panic("mortar: setup method called after the first request was handled; " +
			"move all routes and lifecycle callbacks to application startup")
	}
}

// RouteOption configures a single URL rule.
type RouteOption func(*Rule)

// Endpoint overrides the endpoint name derived from the view function.
func Endpoint(name string) RouteOption {
	return func(r *Rule) { r.Endpoint = name }
}

// Methods sets the HTTP methods the rule responds to (default GET).
func Methods(methods ...string) RouteOption {
	return func(r *Rule) { r.Methods = methods }
}

// NoAutomaticOptions disables the synthesized OPTIONS response for the rule.
func NoAutomaticOptions() RouteOption {
	return func(r *Rule) { r.NoAutoOptions = true }
}

// Route registers a view function under a URL pattern. The endpoint name
// defaults to the view's function name; registering two views under the same
// endpoint, or the same method and pattern twice, panics.
func (a *App) Route(pattern string, view ViewFunc, opts ...RouteOption) {
	a.checkSetup()
	a.route("", pattern, view, opts...)
}

func (a *App) route(blueprint, pattern string, view ViewFunc, opts ...RouteOption) {
	rule := &Rule{Pattern: pattern, Blueprint: blueprint}
	for _, opt := range opts {
		opt(rule)
	}
	if rule.Endpoint == "" {
		rule.Endpoint = funcName(view)
	}
	if blueprint != "" {
		rule.Endpoint = blueprint + "." + rule.Endpoint
	}

	if existing, ok := a.viewFuncs[rule.Endpoint]; ok && !sameFunc(existing, view) {
		panic("mortar: view function mapping is overwriting an existing endpoint: " + rule.Endpoint)
	}
	if err := a.urlMap.Add(rule); err != nil {
		panic("mortar: " + err.Error())
	}
	a.viewFuncs[rule.Endpoint] = view
}

// funcName derives an endpoint name from a function symbol, e.g.
// "github.com/acme/site.listUsers" becomes "listUsers".
func funcName(view ViewFunc) string {
	name := runtime.FuncForPC(reflect.ValueOf(view).Pointer()).Name()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

func sameFunc(a, b ViewFunc) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// BeforeFirstRequest registers fn to run once before the first request.
func (a *App) BeforeFirstRequest(fn BeforeFirstRequestFunc) {
	a.checkSetup()
	a.beforeFirstRequest = append(a.beforeFirstRequest, fn)
}

// BeforeRequest registers an app-wide before-request callback.
func (a *App) BeforeRequest(fn BeforeRequestFunc) {
	a.checkSetup()
	a.beforeRequest[""] = append(a.beforeRequest[""], fn)
}

// AfterRequest registers an app-wide after-request callback. Callbacks run in
// reverse registration order, so the first registered one sees the response
// last.
func (a *App) AfterRequest(fn AfterRequestFunc) {
	a.checkSetup()
	a.afterRequest[""] = append(a.afterRequest[""], fn)
}

// TeardownRequest registers an app-wide request teardown callback.
func (a *App) TeardownRequest(fn TeardownRequestFunc) {
	a.checkSetup()
	a.teardownRequest[""] = append(a.teardownRequest[""], fn)
}

// TeardownAppContext registers a callback for when an application context is
// popped for the last time.
func (a *App) TeardownAppContext(fn AppTeardownFunc) {
	a.checkSetup()
	a.teardownAppContext = append(a.teardownAppContext, fn)
}

// URLValuePreprocessor registers an app-wide path parameter preprocessor.
func (a *App) URLValuePreprocessor(fn URLValuePreprocessorFunc) {
	a.checkSetup()
	a.urlValuePreprocessors[""] = append(a.urlValuePreprocessors[""], fn)
}

// ErrorHandler registers a handler for every HTTP-domain error with the given
// status code. Later registrations shadow earlier ones.
func (a *App) ErrorHandler(code int, fn ErrorHandlerFunc) {
	a.checkSetup()
	a.errorHandlers.add("", code, matchStatusCode(code), fn)
}

// ErrorHandlerForErr registers a handler matched with errors.Is against a
// sentinel error value.
func (a *App) ErrorHandlerForErr(target error, fn ErrorHandlerFunc) {
	a.checkSetup()
	a.errorHandlers.add("", statusCodeOf(target), matchErrorIs(target), fn)
}

// ErrorHandlerFor registers a handler matched with errors.As against the
// error type T. It is a free function because Go methods cannot introduce
// type parameters.
func ErrorHandlerFor[T error](a *App, fn ErrorHandlerFunc) {
	a.checkSetup()
	a.errorHandlers.add("", 0, MatchErrorAs[T](), fn)
}

// doTeardownRequest runs the request teardown callbacks, blueprint-scoped
// first, each group in reverse registration order, then announces the
// teardown. Teardown runs even when dispatch failed, so callbacks must not
// assume the view ran.
func (a *App) doTeardownRequest(c *RequestContext, err error) {
	if bp := c.BlueprintName(); bp != "" {
		runTeardowns(a.teardownRequest[bp], c, err)
	}
	runTeardowns(a.teardownRequest[""], c, err)
	a.RequestTearingDown.Send(TeardownEvent{App: a, Err: err})
}

func runTeardowns(funcs []TeardownRequestFunc, c *RequestContext, err error) {
	for i := len(funcs) - 1; i >= 0; i-- {
		funcs[i](c, err)
	}
}

// doTeardownAppContext runs the application context teardown callbacks in
// reverse registration order, then announces the teardown.
func (a *App) doTeardownAppContext(err error) {
	for i := len(a.teardownAppContext) - 1; i >= 0; i-- {
		a.teardownAppContext[i](err)
	}
	a.AppContextTearingDown.Send(TeardownEvent{App: a, Err: err})
}
