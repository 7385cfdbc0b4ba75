package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Response is the canonical response representation every view return value
// is normalized into: a status, headers, and a fully buffered body. Buffering
// lets after-request callbacks and error handlers replace or decorate the
// response before anything reaches the wire.
type Response struct {
	// Status is the full status line, e.g. "404 NOT FOUND". Views may
	// overwrite it verbatim by returning a textual status; Go's HTTP server
	// only transmits the numeric code, but the line stays observable to
	// after-request callbacks.
	Status string

	Header http.Header
	Body   []byte

	// StatusCode drives the wire status.
	StatusCode int
}

// NewTextResponse creates a plain text response.
func NewTextResponse(code int, body string) *Response {
	resp := &Response{
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(body),
	}
	resp.setStatusCode(code)
	return resp
}

// NewJSONResponse creates an application/json response from v.
func NewJSONResponse(code int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json response: %w", err)
	}
	resp := &Response{
		Header: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
		Body:   body,
	}
	resp.setStatusCode(code)
	return resp, nil
}

func (r *Response) setStatusCode(code int) {
	r.StatusCode = code
	r.Status = strconv.Itoa(code) + " " + http.StatusText(code)
}

// setStatusLine overwrites the status line verbatim. The numeric prefix, if
// present, drives the status code.
func (r *Response) setStatusLine(status string) {
	r.Status = status
	head, _, _ := strings.Cut(strings.TrimSpace(status), " ")
	if code, err := strconv.Atoi(head); err == nil {
		r.StatusCode = code
	}
}

// AddHeaders appends the given headers to the response, keeping any values
// already present.
func (r *Response) AddHeaders(h http.Header) {
	for name, values := range h {
		for _, v := range values {
			r.Header.Add(name, v)
		}
	}
}

// Write sends the response over w.
func (r *Response) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range r.Header {
		dst[name] = append(dst[name], values...)
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}

// NewResponse normalizes a view return value into a Response:
//
//   - string or []byte: the body of a fresh 200 response
//   - *Response: returned unchanged
//   - Component: rendered into the body of a 200 HTML response
//   - http.Handler: invoked as a nested handler against the current request;
//     its buffered output becomes the response
//   - a 3-element []any: (body, status, headers)
//   - a 2-element []any: (body, status) or (body, headers), decided by
//     whether the second element is header-like
//
// Any other shape, and a nil body, is a programming error in the view, not an
// empty-body success.
func NewResponse(c *RequestContext, rv any) (*Response, error) {
	var status any
	var headers http.Header

	if seq, ok := rv.([]any); ok {
		switch len(seq) {
		case 3:
			rv = seq[0]
			status = seq[1]
			h, err := coerceHeaders(seq[2])
			if err != nil {
				return nil, err
			}
			headers = h
		case 2:
			if h, ok := headerLike(seq[1]); ok {
				rv, headers = seq[0], h
			} else {
				rv, status = seq[0], seq[1]
			}
		default:
			return nil, fmt.Errorf(
				"the view function did not return a valid response tuple: it must "+
					"have the form (body, status, headers), (body, status), or "+
					"(body, headers), got %d elements", len(seq))
		}
	}

	if rv == nil {
		return nil, fmt.Errorf(
			"the view function did not return a valid response: it returned nil " +
				"or ended without a return value")
	}

	resp, err := coerceBody(c, rv)
	if err != nil {
		return nil, err
	}

	// prefer the status if it was provided
	switch s := status.(type) {
	case nil:
	case string:
		resp.setStatusLine(s)
	case int:
		resp.setStatusCode(s)
	default:
		return nil, fmt.Errorf("the view function returned a %T status; it must be an int or a string", status)
	}

	if headers != nil {
		resp.AddHeaders(headers)
	}
	return resp, nil
}

// Component is a renderable template fragment. The interface is compatible
// with templ.Component, so templ views plug in without an adapter.
type Component interface {
	Render(ctx context.Context, w io.Writer) error
}

func coerceBody(c *RequestContext, rv any) (*Response, error) {
	switch body := rv.(type) {
	case *Response:
		return body, nil
	case string:
		return NewTextResponse(http.StatusOK, body), nil
	case []byte:
		resp := NewTextResponse(http.StatusOK, "")
		resp.Body = body
		return resp, nil
	case Component:
		if c == nil {
			return nil, fmt.Errorf("a component response requires an active request")
		}
		return c.Render(http.StatusOK, body)
	case http.Handler:
		if c == nil {
			return nil, fmt.Errorf("a nested handler response requires an active request")
		}
		return runNestedHandler(body, c.Request()), nil
	case func(http.ResponseWriter, *http.Request):
		if c == nil {
			return nil, fmt.Errorf("a nested handler response requires an active request")
		}
		return runNestedHandler(http.HandlerFunc(body), c.Request()), nil
	default:
		return nil, fmt.Errorf(
			"the view function did not return a valid response: the return value "+
				"must be a string, []byte, *Response, Component, http.Handler, or "+
				"a response tuple, but it was %T", rv)
	}
}

// headerLike reports whether v is one of the shapes accepted as headers in a
// 2-element return, converting it when so.
func headerLike(v any) (http.Header, bool) {
	switch v.(type) {
	case http.Header, map[string]string, map[string][]string, [][2]string:
		h, err := coerceHeaders(v)
		if err != nil {
			return nil, false
		}
		return h, true
	}
	return nil, false
}

func coerceHeaders(v any) (http.Header, error) {
	switch hv := v.(type) {
	case http.Header:
		return hv, nil
	case map[string][]string:
		return http.Header(hv), nil
	case map[string]string:
		h := make(http.Header, len(hv))
		for name, value := range hv {
			h.Set(name, value)
		}
		return h, nil
	case [][2]string:
		h := make(http.Header, len(hv))
		for _, pair := range hv {
			h.Add(pair[0], pair[1])
		}
		return h, nil
	default:
		return nil, fmt.Errorf("the view function returned %T headers; they must be an "+
			"http.Header, map, or list of pairs", v)
	}
}

// bufferedWriter captures the output of a nested handler.
type bufferedWriter struct {
	header http.Header
	body   []byte
	status int
}

func (w *bufferedWriter) Header() http.Header {
	return w.header
}

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body = append(w.body, b...)
	return len(b), nil
}

func runNestedHandler(h http.Handler, r *http.Request) *Response {
	w := &bufferedWriter{header: make(http.Header)}
	h.ServeHTTP(w, r)
	if w.status == 0 {
		w.status = http.StatusOK
	}
	resp := &Response{Header: w.header, Body: w.body}
	resp.setStatusCode(w.status)
	return resp
}
