package internal

import (
	"errors"
	"net/http"
	"strings"
)

// ServeHTTP drives the full request lifecycle: context push, dispatch,
// response finalization, and teardown. Teardown runs on every path out of
// here, including panics escaping in propagation mode.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if limit := a.config.MaxContentLength; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	c := a.NewRequestContext(NewScope(), r)
	c.Push()

	var resp *Response
	var failure error
	func() {
		defer func() { c.autoPop(failure) }()
		var err error
		resp, err = a.fullDispatchRequest(c)
		if err != nil {
			failure = err
			resp = a.handleException(c, err)
		}
	}()

	if err := resp.Write(w); err != nil {
		a.logger.ErrorContext(c, "failed to write response", "error", err)
	}
}

// fullDispatchRequest runs the dispatch pipeline once the request context is
// pushed: the first-request barrier, the before-request callbacks, the view,
// and finalization. Failures are first offered to the registered error
// handlers; only errors nothing handled are returned.
func (a *App) fullDispatchRequest(c *RequestContext) (*Response, error) {
	if err := a.tryTriggerBeforeFirstRequest(c); err != nil {
		return nil, err
	}
	a.RequestStarted.Send(c)

	rv, err := a.safeDispatch(c)
	if err != nil {
		rv, err = a.handleUserError(c, err)
		if err != nil {
			return nil, err
		}
	}
	return a.finalizeRequest(c, rv, false)
}

// safeDispatch runs the preprocessors and the view with panics converted to
// errors, so a panicking view travels the same error path as a returned one.
func (a *App) safeDispatch(c *RequestContext) (rv any, err error) {
	defer func() {
		if p := recover(); p != nil {
			rv, err = nil, newPanicError(p)
		}
	}()

	rv, err = a.preprocessRequest(c)
	if err != nil || rv != nil {
		return rv, err
	}
	return a.dispatchRequest(c)
}

// preprocessRequest runs the URL value preprocessors and then the
// before-request callbacks, app-wide ones before blueprint-scoped ones. The
// first callback returning a non-nil value short-circuits dispatch: that
// value becomes the response and the view never runs.
func (a *App) preprocessRequest(c *RequestContext) (any, error) {
	bp := c.BlueprintName()

	if c.match != nil {
		for _, fn := range a.urlValuePreprocessors[""] {
			fn(c.Endpoint(), c.match.Params)
		}
		if bp != "" {
			for _, fn := range a.urlValuePreprocessors[bp] {
				fn(c.Endpoint(), c.match.Params)
			}
		}
	}

	funcs := a.beforeRequest[""]
	if bp != "" && len(a.beforeRequest[bp]) > 0 {
		funcs = append(append([]BeforeRequestFunc{}, funcs...), a.beforeRequest[bp]...)
	}
	for _, fn := range funcs {
		rv, err := fn(c)
		if err != nil || rv != nil {
			return rv, err
		}
	}
	return nil, nil
}

// dispatchRequest resolves the routing outcome and invokes the view, or
// synthesizes the automatic OPTIONS response.
func (a *App) dispatchRequest(c *RequestContext) (any, error) {
	if c.routingErr != nil {
		return nil, a.raiseRoutingError(c)
	}

	rule := c.match.Rule
	if rule.ProvideAutomaticOptions && c.Method() == http.MethodOptions {
		return a.makeDefaultOptionsResponse(c), nil
	}

	view, ok := a.viewFuncs[rule.Endpoint]
	if !ok {
		return nil, ErrInternal("no view function registered for endpoint " + rule.Endpoint)
	}
	return view(c)
}

// raiseRoutingError converts a routing redirect into a diagnostic failure
// when honoring it would silently discard a request body: in debug mode, a
// redirected POST loses its form data, and that is worth failing loudly over.
// All other routing errors pass through unchanged.
func (a *App) raiseRoutingError(c *RequestContext) error {
	var redirect *RedirectError
	if errors.As(c.routingErr, &redirect) && a.config.Debug && !isSafeMethod(c.Method()) {
		return &FormDataRedirectError{
			Method:   c.Method(),
			Path:     c.Path(),
			Location: redirect.Location,
		}
	}
	return c.routingErr
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// makeDefaultOptionsResponse answers OPTIONS with the methods allowed on the
// requested path.
func (a *App) makeDefaultOptionsResponse(c *RequestContext) *Response {
	resp := &Response{Header: make(http.Header)}
	resp.setStatusCode(http.StatusOK)
	resp.Header.Set("Allow", strings.Join(a.urlMap.AllowedMethods(c.Path()), ", "))
	resp.Header.Set("Content-Length", "0")
	return resp
}

// handleUserError offers a failed dispatch to the registered error handlers.
// HTTP-domain errors fall back to their own default rendering when no handler
// claims them; everything else, and trapped HTTP errors, is returned
// unhandled for the internal-server-error path.
func (a *App) handleUserError(c *RequestContext, err error) (any, error) {
	var hr HTTPResponder
	if errors.As(err, &hr) {
		if a.trapError(err) {
			return nil, err
		}
		return a.handleHTTPError(c, err, hr)
	}

	if handler := a.errorHandlers.find(c.BlueprintName(), err); handler != nil {
		return handler(c, err)
	}
	return nil, err
}

// handleHTTPError resolves the handler for an HTTP-domain error, most
// specific bucket first, and falls back to the error's default response.
func (a *App) handleHTTPError(c *RequestContext, err error, hr HTTPResponder) (any, error) {
	if handler := a.errorHandlers.find(c.BlueprintName(), err); handler != nil {
		return handler(c, err)
	}
	return hr.ErrorResponse(), nil
}

// trapError reports whether err should bypass error handlers and surface as
// a raw failure. Trapping everything is a test-harness affordance; trapping
// missing-request-key 400s is a debug default so the missing field is named
// in the failure instead of a generic 400 page.
func (a *App) trapError(err error) bool {
	if errors.Is(err, ErrMissingRequestKey) && statusCodeOf(err) == http.StatusBadRequest {
		return a.config.TrapHTTPErrors || a.config.trapBadRequestErrors()
	}
	return a.config.TrapHTTPErrors
}

// handleException is the last resort for errors nothing handled. In
// propagation mode the error escapes as a panic so the surrounding harness
// (a test, usually) sees the original failure; otherwise it is logged and
// served as a 500, via the registered internal-error handler when present.
func (a *App) handleException(c *RequestContext, err error) *Response {
	a.GotRequestException.Send(ExceptionEvent{Ctx: c, Err: err})

	if a.config.propagateExceptions() {
		panic(err)
	}

	a.logException(c, err)

	internal := ErrInternal(
		"the server encountered an internal error and was unable to complete your request",
		WithError(err))

	rv := any(internal.ErrorResponse())
	if handler := a.errorHandlers.find(c.BlueprintName(), internal); handler != nil {
		hrv, herr := handler(c, internal)
		if herr != nil {
			a.logger.ErrorContext(c, "error handler for internal error failed", "error", herr)
		} else {
			rv = hrv
		}
	}

	resp, ferr := a.finalizeRequest(c, rv, true)
	if ferr != nil {
		a.logger.ErrorContext(c, "failed to finalize error response", "error", ferr)
		return internal.ErrorResponse()
	}
	return resp
}

// logException records an unhandled error with enough request detail to find
// it again. Panics log with their captured stack.
func (a *App) logException(c *RequestContext, err error) {
	args := []any{"method", c.Method(), "path", c.Path(), "error", err}
	var pe *PanicError
	if errors.As(err, &pe) {
		args = append(args, "stack", string(pe.Stack))
	}
	a.logger.ErrorContext(c, "unhandled error during request", args...)
}

// finalizeRequest coerces a view return value into a Response and runs the
// response half of the pipeline. With fromErrorHandler set, failures here are
// logged instead of escalated, because there is no further fallback level.
func (a *App) finalizeRequest(c *RequestContext, rv any, fromErrorHandler bool) (*Response, error) {
	resp, err := NewResponse(c, rv)
	if err != nil {
		return nil, err
	}

	resp, err = a.processResponse(c, resp)
	if err != nil {
		if !fromErrorHandler {
			return nil, err
		}
		a.logger.ErrorContext(c, "request finalization failed while handling an error", "error", err)
	}
	a.RequestFinished.Send(ResponseEvent{Ctx: c, Response: resp})
	return resp, nil
}

// processResponse applies the deferred response headers, runs the
// after-request callbacks (per-request ones first, then blueprint and
// app-wide ones in reverse registration order), and saves the session.
func (a *App) processResponse(c *RequestContext, resp *Response) (*Response, error) {
	resp.AddHeaders(c.respHeader)

	for _, fn := range c.afterRequest {
		next, err := fn(c, resp)
		if err != nil {
			return resp, err
		}
		resp = next
	}
	if bp := c.BlueprintName(); bp != "" {
		next, err := runAfterRequest(a.afterRequest[bp], c, resp)
		if err != nil {
			return resp, err
		}
		resp = next
	}
	next, err := runAfterRequest(a.afterRequest[""], c, resp)
	if err != nil {
		return resp, err
	}
	resp = next

	if sess := c.session; sess != nil && !sess.IsNull() {
		if err := a.sessions.Save(c, sess, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func runAfterRequest(funcs []AfterRequestFunc, c *RequestContext, resp *Response) (*Response, error) {
	for i := len(funcs) - 1; i >= 0; i-- {
		next, err := funcs[i](c, resp)
		if err != nil {
			return resp, err
		}
		resp = next
	}
	return resp, nil
}

// tryTriggerBeforeFirstRequest runs the before-first-request callbacks
// exactly once across all goroutines. Requests arriving while the callbacks
// run wait for them; a callback error leaves the barrier open so the next
// request retries.
func (a *App) tryTriggerBeforeFirstRequest(c *RequestContext) error {
	if a.gotFirstRequest.Load() {
		return nil
	}
	a.firstRequestMu.Lock()
	defer a.firstRequestMu.Unlock()
	if a.gotFirstRequest.Load() {
		return nil
	}
	for _, fn := range a.beforeFirstRequest {
		if err := fn(c); err != nil {
			return err
		}
	}
	a.gotFirstRequest.Store(true)
	return nil
}
