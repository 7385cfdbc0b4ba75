package mortar

import (
	"context"

	"github.com/mortarweb/mortar/internal"
	"github.com/mortarweb/mortar/pkg/cookie"
	"github.com/mortarweb/mortar/pkg/logger"
	"github.com/mortarweb/mortar/pkg/session"
)

// Type aliases - public API
type (
	// App is the central registry of routes, callbacks, and error handlers.
	// It implements http.Handler and drives the request lifecycle.
	App = internal.App

	// Ctx is the request context: one HTTP request bound to an application,
	// with the session, path parameters, and response helpers attached. It
	// implements context.Context.
	Ctx = internal.RequestContext

	// AppContext binds an application to a scope outside request handling,
	// for scripts, jobs, and tests.
	AppContext = internal.AppContext

	// Scope owns the context stacks of one goroutine.
	Scope = internal.Scope

	// Globals is the per-application-context scratch storage.
	Globals = internal.Globals

	// Blueprint groups routes and callbacks for later registration.
	Blueprint = internal.Blueprint

	// Response is the buffered response every view return value becomes.
	Response = internal.Response

	// Component is a renderable template fragment, compatible with
	// templ.Component.
	Component = internal.Component

	// HTTPError is an error carrying an HTTP status code and rendering data.
	HTTPError = internal.HTTPError

	// Config carries the runtime policy knobs.
	Config = internal.Config

	// Rule describes one registered URL rule.
	Rule = internal.Rule

	// Match is a successful routing outcome.
	Match = internal.Match

	// URLMap is the routing table.
	URLMap = internal.URLMap

	// ViewFunc handles a matched request.
	ViewFunc = internal.ViewFunc

	// BeforeRequestFunc runs before dispatch; a non-nil return value becomes
	// the response.
	BeforeRequestFunc = internal.BeforeRequestFunc

	// BeforeFirstRequestFunc runs once before the first request.
	BeforeFirstRequestFunc = internal.BeforeFirstRequestFunc

	// AfterRequestFunc can replace or decorate the response.
	AfterRequestFunc = internal.AfterRequestFunc

	// TeardownRequestFunc runs when the request context is popped.
	TeardownRequestFunc = internal.TeardownRequestFunc

	// AppTeardownFunc runs when an application context is finally popped.
	AppTeardownFunc = internal.AppTeardownFunc

	// URLValuePreprocessorFunc inspects matched path parameters before
	// dispatch.
	URLValuePreprocessorFunc = internal.URLValuePreprocessorFunc

	// ErrorHandlerFunc handles a failed request.
	ErrorHandlerFunc = internal.ErrorHandlerFunc

	// ErrorMatcher decides whether a handler applies to an error.
	ErrorMatcher = internal.ErrorMatcher

	// SessionInterface loads and persists sessions.
	SessionInterface = internal.SessionInterface

	// Session carries per-client values across requests.
	Session = session.Session

	// SessionStore is the persistence interface for server-side sessions.
	SessionStore = session.Store

	// Option configures the application.
	Option = internal.Option

	// RouteOption configures a single URL rule.
	RouteOption = internal.RouteOption

	// RegisterOption configures blueprint registration.
	RegisterOption = internal.RegisterOption

	// RunOption configures the server runtime.
	RunOption = internal.RunOption

	// HTTPErrorOption configures an HTTPError.
	HTTPErrorOption = internal.HTTPErrorOption

	// ContextExtractor extracts a slog attribute from context.
	ContextExtractor = logger.ContextExtractor

	// CookieOption configures the cookie manager.
	CookieOption = cookie.Option

	// RedirectError is the routing outcome suggesting the canonical URL.
	RedirectError = internal.RedirectError

	// FormDataRedirectError replaces a suppressed routing redirect in debug
	// mode.
	FormDataRedirectError = internal.FormDataRedirectError

	// PanicError wraps a value recovered from a panicking view.
	PanicError = internal.PanicError

	// Signal is a synchronous in-process notification point.
	Signal[T any] = internal.Signal[T]

	// TeardownEvent accompanies the tearing-down signals.
	TeardownEvent = internal.TeardownEvent

	// ResponseEvent accompanies the request-finished signal.
	ResponseEvent = internal.ResponseEvent

	// ExceptionEvent accompanies the request-exception signal.
	ExceptionEvent = internal.ExceptionEvent
)

// Constructors

// New creates an application with the given options.
//
// Example:
//
//	app := mortar.New(
//	    mortar.WithName("api"),
//	    mortar.WithSecretKey(os.Getenv("SECRET_KEY")),
//	)
//	app.Route("/users/{id}", showUser)
//	err := app.Run(mortar.Address(":8080"))
func New(opts ...Option) *App {
	return internal.New(opts...)
}

// NewBlueprint creates an empty blueprint.
func NewBlueprint(name string) *Blueprint {
	return internal.NewBlueprint(name)
}

// NewScope creates an empty context scope for use outside request handling:
//
//	scope := mortar.NewScope()
//	ac := app.AppContext(scope)
//	ac.Push()
//	defer ac.Pop(nil)
//	ctx := mortar.WithScope(context.Background(), scope)
func NewScope() *Scope {
	return internal.NewScope()
}

// Context accessors

// WithScope attaches a scope to ctx so the Current* accessors can find it.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return internal.WithScope(ctx, s)
}

// CurrentApp returns the application of the active application context,
// panicking when none is active.
func CurrentApp(ctx context.Context) *App {
	return internal.CurrentApp(ctx)
}

// CurrentAppContext returns the active application context, panicking when
// none is active.
func CurrentAppContext(ctx context.Context) *AppContext {
	return internal.CurrentAppContext(ctx)
}

// CurrentRequest returns the active request context, panicking when none is
// active.
func CurrentRequest(ctx context.Context) *Ctx {
	return internal.CurrentRequest(ctx)
}

// G returns the globals of the active application context.
func G(ctx context.Context) *Globals {
	return internal.G(ctx)
}

// CurrentSession returns the session of the active request context.
func CurrentSession(ctx context.Context) *Session {
	return internal.CurrentSession(ctx)
}

// HasAppContext reports whether an application context is active on ctx.
func HasAppContext(ctx context.Context) bool {
	return internal.HasAppContext(ctx)
}

// HasRequestContext reports whether a request context is active on ctx.
func HasRequestContext(ctx context.Context) bool {
	return internal.HasRequestContext(ctx)
}

// Error handling

// ErrorHandlerFor registers an app-level handler matched against the error
// type T.
func ErrorHandlerFor[T error](a *App, fn ErrorHandlerFunc) {
	internal.ErrorHandlerFor[T](a, fn)
}

// BlueprintErrorHandlerFor registers a blueprint-scoped handler matched
// against the error type T.
func BlueprintErrorHandlerFor[T error](b *Blueprint, fn ErrorHandlerFunc) {
	internal.BlueprintErrorHandlerFor[T](b, fn)
}

// MatchErrorAs builds a matcher applying when an error is (or wraps) a value
// of type T.
func MatchErrorAs[T error]() ErrorMatcher {
	return internal.MatchErrorAs[T]()
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.NewHTTPError(code, message, opts...)
}

// Common HTTP error constructors.

func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrBadRequest(message, opts...)
}

func ErrUnauthorized(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrUnauthorized(message, opts...)
}

func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrForbidden(message, opts...)
}

func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrNotFound(message, opts...)
}

func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrInternal(message, opts...)
}

// ErrMissingRequestKey marks a required form or query value that was absent
// from the request.
var ErrMissingRequestKey = internal.ErrMissingRequestKey

// IsHTTPError reports whether err is (or wraps) an HTTPError.
func IsHTTPError(err error) bool {
	return internal.IsHTTPError(err)
}

// AsHTTPError extracts the HTTPError from an error if present.
func AsHTTPError(err error) *HTTPError {
	return internal.AsHTTPError(err)
}

// WithTitle sets the error title used in the default rendering.
func WithTitle(title string) HTTPErrorOption {
	return internal.WithTitle(title)
}

// WithError attaches an underlying error for logging and unwrapping.
func WithError(err error) HTTPErrorOption {
	return internal.WithError(err)
}

// WithHeader adds a response header carried by the error.
func WithHeader(name, value string) HTTPErrorOption {
	return internal.WithHeader(name, value)
}

// Configuration

// LoadConfig builds a Config from defaults, an optional YAML file, and
// MORTAR_-prefixed environment variables.
func LoadConfig(path string) (*Config, error) {
	return internal.LoadConfig(path)
}

// DefaultConfig resolves Env and Debug from the process environment and
// fills in the defaults.
func DefaultConfig() *Config {
	return internal.DefaultConfig()
}

// LoadDotenv loads .mortarenv and .env from the working directory.
func LoadDotenv() bool {
	return internal.LoadDotenv()
}
