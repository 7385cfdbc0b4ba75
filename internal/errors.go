package internal

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
)

// HTTPError represents an HTTP-domain error with all data needed for
// rendering. It implements the error interface and carries structured data
// for error handlers to render error pages or API bodies.
type HTTPError struct {
	// Err is the underlying error (for logging, not exposed to users).
	Err error

	// Message is the user-facing error message.
	Message string

	// Title is an optional title for the error (defaults derived from Code).
	Title string

	// Headers are extra response headers the error carries, e.g. Allow on a
	// 405 or Location on a redirect.
	Headers http.Header

	// Code is the HTTP status code (e.g., 404, 500).
	Code int
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) StatusCode() int {
	return e.Code
}

func (e *HTTPError) StatusText() string {
	return http.StatusText(e.Code)
}

// ErrorResponse renders the default response for this error, used when no
// handler is registered for it.
func (e *HTTPError) ErrorResponse() *Response {
	title := e.Title
	if title == "" {
		title = e.StatusText()
	}
	resp := NewTextResponse(e.Code, title+": "+e.Message)
	for name, values := range e.Headers {
		for _, v := range values {
			resp.Header.Add(name, v)
		}
	}
	return resp
}

// HTTPErrorOption configures an HTTPError.
type HTTPErrorOption func(*HTTPError)

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	e := &HTTPError{
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithTitle(title string) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Title = title
	}
}

func WithError(err error) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Err = err
	}
}

// WithHeader adds a response header carried by the error.
func WithHeader(name, value string) HTTPErrorOption {
	return func(e *HTTPError) {
		if e.Headers == nil {
			e.Headers = make(http.Header)
		}
		e.Headers.Add(name, value)
	}
}

// Convenience constructors for common HTTP errors.

func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message, opts...)
}

func ErrUnauthorized(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message, opts...)
}

func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message, opts...)
}

func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message, opts...)
}

func ErrMethodNotAllowed(allowed []string, opts ...HTTPErrorOption) *HTTPError {
	sorted := append([]string(nil), allowed...)
	sort.Strings(sorted)
	opts = append(opts, WithHeader("Allow", strings.Join(sorted, ", ")))
	return NewHTTPError(http.StatusMethodNotAllowed,
		"the method is not allowed for the requested URL", opts...)
}

func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, message, opts...)
}

// IsHTTPError reports whether err is (or wraps) an HTTPError.
func IsHTTPError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he)
}

// AsHTTPError extracts the HTTPError from an error if present.
// Returns nil if the error is not an HTTPError.
func AsHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	return nil
}

// HTTPResponder is implemented by error types that carry an HTTP status code
// and know how to describe themselves as a response. These errors are
// recoverable through registered handlers; anything else escalates to the
// internal-server-error path.
type HTTPResponder interface {
	error
	StatusCode() int
	ErrorResponse() *Response
}

// statusCodeOf returns the HTTP status code carried by err, or 0.
func statusCodeOf(err error) int {
	var hr HTTPResponder
	if errors.As(err, &hr) {
		return hr.StatusCode()
	}
	return 0
}

// RedirectError is the routing outcome suggesting the canonical form of a
// requested URL, usually a trailing-slash variant. It is a distinct type so
// dispatch can apply the debug-mode suppression policy before honoring it.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return "requested URL redirects to " + e.Location
}

func (e *RedirectError) StatusCode() int {
	return http.StatusPermanentRedirect
}

func (e *RedirectError) ErrorResponse() *Response {
	resp := NewTextResponse(e.StatusCode(), "redirecting to "+e.Location)
	resp.Header.Set("Location", e.Location)
	return resp
}

// FormDataRedirectError replaces a suppressed routing redirect in debug mode:
// redirecting a request with a body would silently drop the submitted form
// data, so the situation surfaces as a diagnostic failure instead. It
// deliberately carries no status code.
type FormDataRedirectError struct {
	Method   string
	Path     string
	Location string
}

func (e *FormDataRedirectError) Error() string {
	return fmt.Sprintf(
		"a %s request to %q was matched by a redirect to %q; the submitted form data "+
			"would be lost on redirect, so send the request to the canonical URL directly",
		e.Method, e.Path, e.Location)
}

// ErrMissingRequestKey marks a lookup of a required request value (form
// field, query parameter) that was absent. In debug mode these are trapped by
// default so the missing key shows up as a raw failure instead of a generic
// 400 page.
var ErrMissingRequestKey = errors.New("missing required request value")

// PanicError wraps a value recovered from a panicking view or callback so it
// can travel the error path with its stack attached.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrorHandlerFunc handles a failed request. Its return value substitutes for
// the view's return value and goes through the normal response coercion.
type ErrorHandlerFunc func(c *RequestContext, err error) (any, error)

// ErrorMatcher decides whether a registered handler applies to an error.
type ErrorMatcher func(error) bool

type registeredHandler struct {
	match ErrorMatcher
	fn    ErrorHandlerFunc
}

// errorRegistry stores handlers keyed by (blueprint-or-app scope, status code
// or zero) with an ordered matcher list per bucket. The matcher list replaces
// exception-class hierarchy walking: within a bucket the newest registration
// is consulted first, so a narrow matcher registered later shadows a broad
// earlier one.
type errorRegistry struct {
	buckets map[string]map[int][]registeredHandler
}

func newErrorRegistry() *errorRegistry {
	return &errorRegistry{buckets: make(map[string]map[int][]registeredHandler)}
}

func (r *errorRegistry) add(scope string, code int, match ErrorMatcher, fn ErrorHandlerFunc) {
	if match == nil {
		panic("mortar: error handler registered with a nil matcher")
	}
	byCode, ok := r.buckets[scope]
	if !ok {
		byCode = make(map[int][]registeredHandler)
		r.buckets[scope] = byCode
	}
	byCode[code] = append(byCode[code], registeredHandler{match: match, fn: fn})
}

// find resolves the most specific handler for err, trying
// (blueprint, code), (app, code), (blueprint, type-only), (app, type-only)
// in that fixed order before giving up.
func (r *errorRegistry) find(blueprint string, err error) ErrorHandlerFunc {
	code := statusCodeOf(err)
	keys := make([][2]any, 0, 4)
	if blueprint != "" {
		keys = append(keys, [2]any{blueprint, code})
	}
	keys = append(keys, [2]any{"", code})
	if blueprint != "" && code != 0 {
		keys = append(keys, [2]any{blueprint, 0})
	}
	if code != 0 {
		keys = append(keys, [2]any{"", 0})
	}

	for _, key := range keys {
		byCode, ok := r.buckets[key[0].(string)]
		if !ok {
			continue
		}
		handlers := byCode[key[1].(int)]
		for i := len(handlers) - 1; i >= 0; i-- {
			if handlers[i].match(err) {
				return handlers[i].fn
			}
		}
	}
	return nil
}

// matchStatusCode matches any HTTP-domain error carrying the given code.
func matchStatusCode(code int) ErrorMatcher {
	return func(err error) bool {
		return statusCodeOf(err) == code
	}
}

// matchErrorIs matches errors.Is against a sentinel value.
func matchErrorIs(target error) ErrorMatcher {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

// MatchErrorAs builds a matcher that applies when err is (or wraps) a value
// of type T. Used by the generic registration helpers.
func MatchErrorAs[T error]() ErrorMatcher {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}
