package hooks

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mortarweb/mortar/internal"
)

const requestIDKey = "request_id"

// requestIDHeaders are checked in order for an inbound request ID.
var requestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID"}

// RequestID is a before-request callback that ensures every request carries
// an ID: the inbound one when a proxy already assigned it, a fresh UUID
// otherwise. The ID is stored on the request context and echoed in the
// response headers.
func RequestID(c *internal.RequestContext) (any, error) {
	var id string
	for _, header := range requestIDHeaders {
		if v := c.Header(header); v != "" {
			id = v
			break
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.SetHeader("X-Request-ID", id)
	return nil, nil
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *internal.RequestContext) string {
	if id, ok := c.Get(requestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// RequestIDExtractor feeds the request ID into log records. Wire it into the
// logger so every line emitted with the request context attached carries the
// ID:
//
//	app := mortar.New(mortar.WithLogger(logger.New(hooks.RequestIDExtractor)))
//	app.BeforeRequest(hooks.RequestID)
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if !internal.HasRequestContext(ctx) {
		return slog.Attr{}, false
	}
	id := GetRequestID(internal.CurrentRequest(ctx))
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String(requestIDKey, id), true
}
