package hooks

import (
	"log/slog"
	"time"

	"github.com/mortarweb/mortar/internal"
)

// AccessLog returns an after-request callback that logs one line per
// completed request. Register it early so it runs last and sees the final
// response:
//
//	app.AfterRequest(hooks.AccessLog(app.Logger()))
func AccessLog(log *slog.Logger) internal.AfterRequestFunc {
	return func(c *internal.RequestContext, resp *internal.Response) (*internal.Response, error) {
		log.InfoContext(c, "request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("endpoint", c.Endpoint()),
			slog.Int("status", resp.StatusCode),
			slog.Int("size", len(resp.Body)),
			slog.Duration("duration", time.Since(c.Started())),
		)
		return resp, nil
	}
}
