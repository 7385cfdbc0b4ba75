package internal_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mortarweb/mortar/internal"
	"github.com/mortarweb/mortar/pkg/session"
)

func serve(app *internal.App, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// quietConfig returns a debug config that renders failures as responses
// instead of propagating them, so tests can assert on the error pages.
func quietConfig() *internal.Config {
	cfg := internal.DefaultConfig()
	cfg.Debug = true
	off := false
	cfg.PropagateExceptions = &off
	cfg.PreserveContextOnError = &off
	return cfg
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	t.Run("view return value becomes the response", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/hello", func(c *internal.RequestContext) (any, error) {
			return "hello world", nil
		})

		rec := serve(app, http.MethodGet, "/hello")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "hello world", rec.Body.String())
	})

	t.Run("path parameters reach the view", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/users/{id}", func(c *internal.RequestContext) (any, error) {
			return "user " + c.Param("id"), nil
		})

		rec := serve(app, http.MethodGet, "/users/42")
		require.Equal(t, "user 42", rec.Body.String())
	})

	t.Run("tuple with status and headers", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/things", func(c *internal.RequestContext) (any, error) {
			return []any{"made", http.StatusCreated, map[string]string{"Location": "/things/1"}}, nil
		}, internal.Methods(http.MethodPost))

		rec := serve(app, http.MethodPost, "/things")
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, "/things/1", rec.Header().Get("Location"))
	})

	t.Run("JSON helper", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/api", func(c *internal.RequestContext) (any, error) {
			return c.JSON(http.StatusOK, map[string]string{"status": "up"})
		})

		rec := serve(app, http.MethodGet, "/api")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		require.JSONEq(t, `{"status":"up"}`, rec.Body.String())
	})

	t.Run("unknown path serves the default 404", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		rec := serve(app, http.MethodGet, "/missing")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method serves 405 with Allow", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/only-get", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		rec := serve(app, http.MethodPost, "/only-get")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		require.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))
	})

	t.Run("automatic OPTIONS answers with allowed methods", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/thing", func(c *internal.RequestContext) (any, error) { return "ok", nil },
			internal.Methods(http.MethodGet, http.MethodPut))

		rec := serve(app, http.MethodOptions, "/thing")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "GET, OPTIONS, PUT", rec.Header().Get("Allow"))
		require.Empty(t, rec.Body.String())
	})

	t.Run("view context reaches app and globals", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/ctx", func(c *internal.RequestContext) (any, error) {
			require.Same(t, app, internal.CurrentApp(c))
			require.Same(t, c, internal.CurrentRequest(c))
			internal.G(c).Set("who", "me")
			v, _ := internal.G(c).Get("who")
			return v.(string), nil
		})

		rec := serve(app, http.MethodGet, "/ctx")
		require.Equal(t, "me", rec.Body.String())
	})

	t.Run("deferred headers reach success and error responses", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/good", func(c *internal.RequestContext) (any, error) {
			c.SetHeader("X-Who", "me")
			return "ok", nil
		})
		app.Route("/bad", func(c *internal.RequestContext) (any, error) {
			c.SetHeader("X-Who", "me")
			return nil, internal.ErrNotFound("gone")
		})

		rec := serve(app, http.MethodGet, "/good")
		require.Equal(t, "me", rec.Header().Get("X-Who"))

		rec = serve(app, http.MethodGet, "/bad")
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "me", rec.Header().Get("X-Who"))
	})
}

func TestTrailingSlashRedirect(t *testing.T) {
	t.Parallel()

	t.Run("GET redirects to the canonical URL", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/users", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		rec := serve(app, http.MethodGet, "/users/")
		require.Equal(t, http.StatusPermanentRedirect, rec.Code)
		require.Equal(t, "/users", rec.Header().Get("Location"))
	})

	t.Run("POST redirects too outside debug", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/users", func(c *internal.RequestContext) (any, error) { return "ok", nil },
			internal.Methods(http.MethodPost))

		rec := serve(app, http.MethodPost, "/users/")
		require.Equal(t, http.StatusPermanentRedirect, rec.Code)
	})

	t.Run("in debug a POST redirect fails loudly instead", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithConfig(quietConfig()))
		app.Route("/users", func(c *internal.RequestContext) (any, error) { return "ok", nil },
			internal.Methods(http.MethodPost))

		// The redirect would drop the submitted form data, so debug mode
		// surfaces it as a failure rather than honoring it.
		rec := serve(app, http.MethodPost, "/users/")
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		// Safe methods still redirect in debug mode.
		app2 := newTestApp(t, internal.WithConfig(quietConfig()))
		app2.Route("/users", func(c *internal.RequestContext) (any, error) { return "ok", nil })
		rec = serve(app2, http.MethodGet, "/users/")
		require.Equal(t, http.StatusPermanentRedirect, rec.Code)
	})
}

func TestLifecycleCallbacks(t *testing.T) {
	t.Parallel()

	t.Run("before-request short-circuits dispatch", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		viewRan := false
		app.BeforeRequest(func(c *internal.RequestContext) (any, error) {
			return []any{"intercepted", http.StatusTeapot}, nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			viewRan = true
			return "ok", nil
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusTeapot, rec.Code)
		require.Equal(t, "intercepted", rec.Body.String())
		require.False(t, viewRan)
	})

	t.Run("after-request callbacks run newest first, per-request first of all", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		var order []string
		app.AfterRequest(func(c *internal.RequestContext, resp *internal.Response) (*internal.Response, error) {
			order = append(order, "A")
			return resp, nil
		})
		app.AfterRequest(func(c *internal.RequestContext, resp *internal.Response) (*internal.Response, error) {
			order = append(order, "B")
			return resp, nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			c.AfterThisRequest(func(c *internal.RequestContext, resp *internal.Response) (*internal.Response, error) {
				order = append(order, "C")
				return resp, nil
			})
			return "ok", nil
		})

		serve(app, http.MethodGet, "/x")
		require.Equal(t, []string{"C", "B", "A"}, order)
	})

	t.Run("after-request can replace the response", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.AfterRequest(func(c *internal.RequestContext, resp *internal.Response) (*internal.Response, error) {
			return internal.NewTextResponse(http.StatusAccepted, "replaced"), nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) { return "orig", nil })

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Equal(t, "replaced", rec.Body.String())
	})

	t.Run("teardown always runs and sees the unhandled error", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		var tornDown []error
		app.TeardownRequest(func(c *internal.RequestContext, err error) {
			tornDown = append(tornDown, err)
		})
		boom := errors.New("boom")
		app.Route("/ok", func(c *internal.RequestContext) (any, error) { return "ok", nil })
		app.Route("/fail", func(c *internal.RequestContext) (any, error) { return nil, boom })

		serve(app, http.MethodGet, "/ok")
		rec := serve(app, http.MethodGet, "/fail")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Len(t, tornDown, 2)
		require.NoError(t, tornDown[0])
		require.ErrorIs(t, tornDown[1], boom)
	})

	t.Run("handled errors tear down clean", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		var got error
		sentinel := errors.New("sentinel")
		app.TeardownRequest(func(c *internal.RequestContext, err error) { got = err })
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, internal.ErrNotFound("x", internal.WithError(sentinel))
		})

		serve(app, http.MethodGet, "/x")
		require.NoError(t, got, "an error rendered as a response is not unhandled")
	})

	t.Run("url value preprocessors see the params before the view", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.URLValuePreprocessor(func(endpoint string, params map[string]string) {
			params["id"] = strings.TrimPrefix(params["id"], "user-")
		})
		app.Route("/users/{id}", func(c *internal.RequestContext) (any, error) {
			return c.Param("id"), nil
		})

		rec := serve(app, http.MethodGet, "/users/user-7")
		require.Equal(t, "7", rec.Body.String())
	})

	t.Run("request signals fire in order", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		var events []string
		app.RequestStarted.Connect(func(*internal.RequestContext) { events = append(events, "started") })
		app.RequestFinished.Connect(func(internal.ResponseEvent) { events = append(events, "finished") })
		app.RequestTearingDown.Connect(func(internal.TeardownEvent) { events = append(events, "teardown") })
		app.Route("/x", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		serve(app, http.MethodGet, "/x")
		require.Equal(t, []string{"started", "finished", "teardown"}, events)
	})
}

func TestBeforeFirstRequest(t *testing.T) {
	t.Parallel()

	t.Run("runs exactly once under concurrency", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		var mu sync.Mutex
		runs := 0
		app.BeforeFirstRequest(func(c *internal.RequestContext) error {
			mu.Lock()
			runs++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				serve(app, http.MethodGet, "/x")
			}()
		}
		wg.Wait()

		require.Equal(t, 1, runs)
		require.True(t, app.GotFirstRequest())
	})

	t.Run("a failing callback is retried on the next request", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		attempts := 0
		app.BeforeFirstRequest(func(c *internal.RequestContext) error {
			attempts++
			if attempts == 1 {
				return errors.New("warmup failed")
			}
			return nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.False(t, app.GotFirstRequest())

		rec = serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 2, attempts)
	})

	t.Run("late registration panics in debug mode", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithConfig(quietConfig()))
		app.Route("/x", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusOK, rec.Code)

		require.Panics(t, func() {
			app.Route("/late", func(c *internal.RequestContext) (any, error) { return "ok", nil })
		})
		require.Panics(t, func() {
			app.BeforeRequest(func(c *internal.RequestContext) (any, error) { return nil, nil })
		})
	})
}

func TestErrorHandling(t *testing.T) {
	t.Parallel()

	t.Run("status code handler replaces the default page", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.ErrorHandler(http.StatusNotFound, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"custom not found", http.StatusNotFound}, nil
		})

		rec := serve(app, http.MethodGet, "/missing")
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "custom not found", rec.Body.String())
	})

	t.Run("blueprint handler beats the app handler for its requests", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		bp := internal.NewBlueprint("users")
		bp.Route("/users/{id}", func(c *internal.RequestContext) (any, error) {
			return nil, internal.ErrNotFound("no such user")
		})
		bp.ErrorHandler(http.StatusNotFound, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"blueprint 404", http.StatusNotFound}, nil
		})
		app.RegisterBlueprint(bp)
		app.ErrorHandler(http.StatusNotFound, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"app 404", http.StatusNotFound}, nil
		})
		app.Route("/gone", func(c *internal.RequestContext) (any, error) {
			return nil, internal.ErrNotFound("gone")
		})

		rec := serve(app, http.MethodGet, "/users/3")
		require.Equal(t, "blueprint 404", rec.Body.String())

		rec = serve(app, http.MethodGet, "/gone")
		require.Equal(t, "app 404", rec.Body.String())

		// Routing failures have no blueprint, so the app handler applies.
		rec = serve(app, http.MethodGet, "/nowhere")
		require.Equal(t, "app 404", rec.Body.String())
	})

	t.Run("later registration shadows an earlier one", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.ErrorHandler(http.StatusNotFound, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"old", http.StatusNotFound}, nil
		})
		app.ErrorHandler(http.StatusNotFound, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"new", http.StatusNotFound}, nil
		})

		rec := serve(app, http.MethodGet, "/missing")
		require.Equal(t, "new", rec.Body.String())
	})

	t.Run("type-matched handler catches wrapped domain errors", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		internal.ErrorHandlerFor[*stockoutError](app, func(c *internal.RequestContext, err error) (any, error) {
			var se *stockoutError
			errors.As(err, &se)
			return []any{"out of " + se.item, http.StatusConflict}, nil
		})
		app.Route("/buy", func(c *internal.RequestContext) (any, error) {
			return nil, &stockoutError{item: "widgets"}
		})

		rec := serve(app, http.MethodGet, "/buy")
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "out of widgets", rec.Body.String())
	})

	t.Run("blueprint type handler beats the app handler for code-less errors", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		bp := internal.NewBlueprint("shop")
		bp.Route("/shop/buy", func(c *internal.RequestContext) (any, error) {
			return nil, &stockoutError{item: "widgets"}
		})
		internal.BlueprintErrorHandlerFor[*stockoutError](bp, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"blueprint stockout", http.StatusConflict}, nil
		})
		app.RegisterBlueprint(bp)
		internal.ErrorHandlerFor[*stockoutError](app, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"app stockout", http.StatusConflict}, nil
		})
		app.Route("/buy", func(c *internal.RequestContext) (any, error) {
			return nil, &stockoutError{item: "gears"}
		})

		rec := serve(app, http.MethodGet, "/shop/buy")
		require.Equal(t, "blueprint stockout", rec.Body.String())

		rec = serve(app, http.MethodGet, "/buy")
		require.Equal(t, "app stockout", rec.Body.String())
	})

	t.Run("sentinel-matched handler", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		errQuota := errors.New("quota exhausted")
		app.ErrorHandlerForErr(errQuota, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"slow down", http.StatusTooManyRequests}, nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, errQuota
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("internal error handler sees the 500", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.ErrorHandler(http.StatusInternalServerError, func(c *internal.RequestContext, err error) (any, error) {
			return []any{"our fault", http.StatusInternalServerError}, nil
		})
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, errors.New("db exploded")
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "our fault", rec.Body.String())
	})

	t.Run("a panicking view becomes a 500", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		var seen error
		app.GotRequestException.Connect(func(e internal.ExceptionEvent) { seen = e.Err })
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			panic("view exploded")
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var pe *internal.PanicError
		require.ErrorAs(t, seen, &pe)
		require.Equal(t, "view exploded", pe.Value)
		require.NotEmpty(t, pe.Stack)
	})

	t.Run("testing mode propagates unhandled errors", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithTesting())
		tornDown := false
		app.TeardownRequest(func(c *internal.RequestContext, err error) { tornDown = true })
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, errors.New("boom")
		})

		require.Panics(t, func() { serve(app, http.MethodGet, "/x") })
		require.True(t, tornDown, "teardown runs even when the error propagates")
	})

	t.Run("HTTP errors render instead of propagating in testing mode", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithTesting())
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, internal.ErrForbidden("no entry")
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("trapped HTTP errors propagate", func(t *testing.T) {
		t.Parallel()
		cfg := internal.DefaultConfig()
		cfg.Testing = true
		cfg.TrapHTTPErrors = true
		app := newTestApp(t, internal.WithConfig(cfg))
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, internal.ErrForbidden("no entry")
		})

		require.Panics(t, func() { serve(app, http.MethodGet, "/x") })
	})

	t.Run("missing form value is a 400 in production", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/form", func(c *internal.RequestContext) (any, error) {
			v, err := c.RequiredForm("name")
			if err != nil {
				return nil, err
			}
			return v, nil
		}, internal.Methods(http.MethodPost))

		rec := serve(app, http.MethodPost, "/form")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "name")
	})

	t.Run("missing form value is trapped in debug", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithDebug(true))
		app.Route("/form", func(c *internal.RequestContext) (any, error) {
			_, err := c.RequiredForm("name")
			return nil, err
		}, internal.Methods(http.MethodPost))

		// Debug traps the bad request and the debug default propagates it.
		require.Panics(t, func() { serve(app, http.MethodPost, "/form") })
	})

	t.Run("nil view return value fails the request", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			return nil, nil
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type stockoutError struct {
	item string
}

func (e *stockoutError) Error() string { return "out of stock: " + e.item }

func TestPreserveContextOnError(t *testing.T) {
	t.Parallel()

	cfg := internal.DefaultConfig()
	cfg.Debug = true
	off := false
	cfg.PropagateExceptions = &off
	app := newTestApp(t, internal.WithConfig(cfg))

	var captured *internal.RequestContext
	app.RequestStarted.Connect(func(c *internal.RequestContext) { captured = c })
	tornDown := false
	app.TeardownRequest(func(c *internal.RequestContext, err error) { tornDown = true })

	boom := errors.New("boom")
	app.Route("/fail", func(c *internal.RequestContext) (any, error) { return nil, boom })

	rec := serve(app, http.MethodGet, "/fail")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The context outlived the request for inspection; teardown is deferred
	// until it is popped explicitly.
	require.NotNil(t, captured)
	require.True(t, captured.Preserved())
	require.False(t, tornDown)
	require.True(t, internal.HasRequestContext(captured))

	captured.Pop(boom)
	require.True(t, tornDown)
	require.False(t, internal.HasRequestContext(captured))
}

func TestSessions(t *testing.T) {
	t.Parallel()

	secret := strings.Repeat("s", 32)

	roundtrip := func(t *testing.T, app *internal.App) {
		t.Helper()
		app.Route("/login", func(c *internal.RequestContext) (any, error) {
			require.NoError(t, c.Session().SetValue("user", "amy"))
			return "in", nil
		})
		app.Route("/whoami", func(c *internal.RequestContext) (any, error) {
			return session.ValueOr(c.Session(), "user", "nobody"), nil
		})

		rec := serve(app, http.MethodGet, "/login")
		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies, "login must set a session cookie")

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec2 := httptest.NewRecorder()
		app.ServeHTTP(rec2, req)
		require.Equal(t, "amy", rec2.Body.String())

		// Without the cookie the session is empty.
		rec3 := serve(app, http.MethodGet, "/whoami")
		require.Equal(t, "nobody", rec3.Body.String())
	}

	t.Run("cookie sessions roundtrip", func(t *testing.T) {
		t.Parallel()
		roundtrip(t, newTestApp(t, internal.WithSecretKey(secret)))
	})

	t.Run("store sessions roundtrip", func(t *testing.T) {
		t.Parallel()
		store := session.NewMemoryStore(0)
		roundtrip(t, newTestApp(t,
			internal.WithSecretKey(secret),
			internal.WithSessionStore(store),
		))
	})

	t.Run("without a secret the session is null", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/x", func(c *internal.RequestContext) (any, error) {
			s := c.Session()
			require.True(t, s.IsNull())
			require.ErrorIs(t, s.SetValue("k", "v"), session.ErrNullSession)
			return "ok", nil
		})

		rec := serve(app, http.MethodGet, "/x")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("untouched sessions set no cookie", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithSecretKey(secret))
		app.Route("/x", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		rec := serve(app, http.MethodGet, "/x")
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("reading a stored session does not save it again", func(t *testing.T) {
		t.Parallel()
		store := session.NewMemoryStore(0)
		app := newTestApp(t,
			internal.WithSecretKey(secret),
			internal.WithSessionStore(store),
		)
		app.Route("/login", func(c *internal.RequestContext) (any, error) {
			return "in", c.Session().SetValue("user", "amy")
		})
		app.Route("/whoami", func(c *internal.RequestContext) (any, error) {
			return session.ValueOr(c.Session(), "user", "nobody"), nil
		})

		cookies := serve(app, http.MethodGet, "/login").Result().Cookies()
		require.NotEmpty(t, cookies)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		require.Equal(t, "amy", rec.Body.String())
		require.Empty(t, rec.Result().Cookies(), "a read-only request must not re-issue the session cookie")
	})

	t.Run("clearing a stored session deletes the cookie", func(t *testing.T) {
		t.Parallel()
		store := session.NewMemoryStore(0)
		app := newTestApp(t,
			internal.WithSecretKey(secret),
			internal.WithSessionStore(store),
		)
		app.Route("/login", func(c *internal.RequestContext) (any, error) {
			return "in", c.Session().SetValue("user", "amy")
		})
		app.Route("/logout", func(c *internal.RequestContext) (any, error) {
			return "out", c.Session().Clear()
		})

		cookies := serve(app, http.MethodGet, "/login").Result().Cookies()
		require.NotEmpty(t, cookies)

		req := httptest.NewRequest(http.MethodGet, "/logout", nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)

		expired := rec.Result().Cookies()
		require.NotEmpty(t, expired, "logout must expire the session cookie")
		require.Empty(t, expired[0].Value)
	})
}

func TestBlueprintRegistration(t *testing.T) {
	t.Parallel()

	t.Run("url prefix mounts the routes", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		bp := internal.NewBlueprint("api")
		bp.Route("/users", func(c *internal.RequestContext) (any, error) {
			return c.Endpoint(), nil
		}, internal.Endpoint("list"))
		app.RegisterBlueprint(bp, internal.WithURLPrefix("/api/v1"))

		rec := serve(app, http.MethodGet, "/api/v1/users")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "api.list", rec.Body.String())
	})

	t.Run("blueprint callbacks apply only to its requests", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		bp := internal.NewBlueprint("admin")
		var calls []string
		bp.BeforeRequest(func(c *internal.RequestContext) (any, error) {
			calls = append(calls, "bp:"+c.Path())
			return nil, nil
		})
		bp.Route("/admin", func(c *internal.RequestContext) (any, error) { return "ok", nil })
		app.RegisterBlueprint(bp)
		app.Route("/public", func(c *internal.RequestContext) (any, error) { return "ok", nil })

		serve(app, http.MethodGet, "/admin")
		serve(app, http.MethodGet, "/public")
		require.Equal(t, []string{"bp:/admin"}, calls)
	})

	t.Run("conflicting blueprint names panic", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.RegisterBlueprint(internal.NewBlueprint("dup"))
		require.Panics(t, func() {
			app.RegisterBlueprint(internal.NewBlueprint("dup"))
		})
	})
}

func TestCookieHelpers(t *testing.T) {
	t.Parallel()

	t.Run("plain cookies survive a roundtrip", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t)
		app.Route("/set", func(c *internal.RequestContext) (any, error) {
			c.SetCookie("theme", "dark", 3600)
			return "ok", nil
		})
		app.Route("/get", func(c *internal.RequestContext) (any, error) {
			v, err := c.Cookie("theme")
			if err != nil {
				return nil, err
			}
			return v, nil
		})

		rec := serve(app, http.MethodGet, "/set")
		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)

		req := httptest.NewRequest(http.MethodGet, "/get", nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec2 := httptest.NewRecorder()
		app.ServeHTTP(rec2, req)
		require.Equal(t, "dark", rec2.Body.String())
	})

	t.Run("signed cookies reject tampering", func(t *testing.T) {
		t.Parallel()
		app := newTestApp(t, internal.WithConfig(quietConfig()), internal.WithSecretKey(strings.Repeat("k", 32)))
		app.Route("/set", func(c *internal.RequestContext) (any, error) {
			return "ok", c.SetCookieSigned("uid", "42", 3600)
		})
		app.Route("/get", func(c *internal.RequestContext) (any, error) {
			v, err := c.CookieSigned("uid")
			if err != nil {
				return nil, internal.ErrUnauthorized("bad cookie")
			}
			return v, nil
		})

		rec := serve(app, http.MethodGet, "/set")
		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)

		req := httptest.NewRequest(http.MethodGet, "/get", nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec2 := httptest.NewRecorder()
		app.ServeHTTP(rec2, req)
		require.Equal(t, "42", rec2.Body.String())

		// Flip the value, keep the signature.
		req = httptest.NewRequest(http.MethodGet, "/get", nil)
		for _, ck := range cookies {
			ck.Value = "forged" + ck.Value[6:]
			req.AddCookie(ck)
		}
		rec3 := httptest.NewRecorder()
		app.ServeHTTP(rec3, req)
		require.Equal(t, http.StatusUnauthorized, rec3.Code)
	})
}
