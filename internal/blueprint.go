package internal

import "strings"

// Blueprint records a group of routes, lifecycle callbacks, and error
// handlers for later registration on an application. Nothing happens until
// RegisterBlueprint replays the recorded setup; the same blueprint can be
// registered on several apps, or on one app under different URL prefixes.
type Blueprint struct {
	// Name scopes the blueprint's endpoints, callbacks, and error handlers.
	Name string

	// Routes replay on every registration; callbacks and error handlers only
	// on the first, so mounting the blueprint twice under different prefixes
	// does not double-run them.
	deferredRoutes []func(a *App, prefix string)
	deferredSetup  []func(a *App)
}

// NewBlueprint creates an empty blueprint.
func NewBlueprint(name string) *Blueprint {
	if name == "" {
		panic("mortar: blueprint name must not be empty")
	}
	if strings.Contains(name, ".") {
		panic("mortar: blueprint name must not contain a dot")
	}
	return &Blueprint{Name: name}
}

func (b *Blueprint) recordRoute(fn func(a *App, prefix string)) {
	b.deferredRoutes = append(b.deferredRoutes, fn)
}

func (b *Blueprint) recordSetup(fn func(a *App)) {
	b.deferredSetup = append(b.deferredSetup, fn)
}

// Route registers a view under the blueprint. The endpoint name is prefixed
// with the blueprint name, "users.show" style.
func (b *Blueprint) Route(pattern string, view ViewFunc, opts ...RouteOption) {
	b.recordRoute(func(a *App, prefix string) {
		a.route(b.Name, joinPrefix(prefix, pattern), view, opts...)
	})
}

// BeforeRequest registers a before-request callback for the blueprint's
// requests only.
func (b *Blueprint) BeforeRequest(fn BeforeRequestFunc) {
	b.recordSetup(func(a *App) {
		a.beforeRequest[b.Name] = append(a.beforeRequest[b.Name], fn)
	})
}

// AfterRequest registers an after-request callback for the blueprint's
// requests only.
func (b *Blueprint) AfterRequest(fn AfterRequestFunc) {
	b.recordSetup(func(a *App) {
		a.afterRequest[b.Name] = append(a.afterRequest[b.Name], fn)
	})
}

// TeardownRequest registers a request teardown callback for the blueprint's
// requests only.
func (b *Blueprint) TeardownRequest(fn TeardownRequestFunc) {
	b.recordSetup(func(a *App) {
		a.teardownRequest[b.Name] = append(a.teardownRequest[b.Name], fn)
	})
}

// URLValuePreprocessor registers a path parameter preprocessor for the
// blueprint's requests only.
func (b *Blueprint) URLValuePreprocessor(fn URLValuePreprocessorFunc) {
	b.recordSetup(func(a *App) {
		a.urlValuePreprocessors[b.Name] = append(a.urlValuePreprocessors[b.Name], fn)
	})
}

// ErrorHandler registers a status code error handler scoped to the
// blueprint. It takes precedence over an app-level handler for the same code
// on the blueprint's requests.
func (b *Blueprint) ErrorHandler(code int, fn ErrorHandlerFunc) {
	b.recordSetup(func(a *App) {
		a.errorHandlers.add(b.Name, code, matchStatusCode(code), fn)
	})
}

// ErrorHandlerForErr registers a sentinel-matched error handler scoped to
// the blueprint.
func (b *Blueprint) ErrorHandlerForErr(target error, fn ErrorHandlerFunc) {
	b.recordSetup(func(a *App) {
		a.errorHandlers.add(b.Name, statusCodeOf(target), matchErrorIs(target), fn)
	})
}

// BlueprintErrorHandlerFor registers a type-matched error handler scoped to
// the blueprint.
func BlueprintErrorHandlerFor[T error](b *Blueprint, fn ErrorHandlerFunc) {
	b.recordSetup(func(a *App) {
		a.errorHandlers.add(b.Name, 0, MatchErrorAs[T](), fn)
	})
}

// RegisterOption configures blueprint registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	urlPrefix string
}

// WithURLPrefix mounts the blueprint's routes under a path prefix.
func WithURLPrefix(prefix string) RegisterOption {
	return func(o *registerOptions) { o.urlPrefix = prefix }
}

// RegisterBlueprint replays a blueprint's recorded setup onto the app.
// Registering two different blueprints under the same name panics.
func (a *App) RegisterBlueprint(b *Blueprint, opts ...RegisterOption) {
	a.checkSetup()

	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	if existing, ok := a.blueprints[b.Name]; ok && existing != b {
		panic("mortar: a different blueprint named " + b.Name + " is already registered")
	}
	first := a.blueprints[b.Name] == nil
	a.blueprints[b.Name] = b

	if first {
		for _, fn := range b.deferredSetup {
			fn(a)
		}
	}
	for _, fn := range b.deferredRoutes {
		fn(a, o.urlPrefix)
	}
}

func joinPrefix(prefix, pattern string) string {
	if prefix == "" {
		return pattern
	}
	return strings.TrimSuffix(prefix, "/") + pattern
}
