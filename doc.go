// Package mortar is a small web framework built around explicit request and
// application contexts.
//
// Every request runs in its own context scope: an application context makes
// the app and its per-context globals reachable through CurrentApp and G, and
// a request context adds the request, the session, and response helpers on
// top. Contexts can also be pushed by hand for scripts, jobs, and tests.
//
// A minimal application:
//
//	app := mortar.New(
//	    mortar.WithName("hello"),
//	    mortar.WithSecretKey(os.Getenv("SECRET_KEY")),
//	)
//
//	app.Route("/hello/{name}", func(c *mortar.Ctx) (any, error) {
//	    return "Hello, " + c.Param("name") + "!", nil
//	})
//
//	log.Fatal(app.Run(mortar.Address(":8080")))
//
// Views return their response as a value: a string or []byte body, a
// *Response, an http.Handler, or a []any tuple of (body, status, headers).
// Errors returned from views resolve against registered error handlers, most
// specific scope first: blueprint and status code, app and status code,
// blueprint and error type, app and error type.
package mortar
