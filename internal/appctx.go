package internal

// Globals is the per-application-context scratch storage. It is created when
// the context is first pushed and discarded on the final pop, so values never
// leak between requests. Shared application state belongs on the App itself.
type Globals struct {
	values map[string]any
}

func newGlobals() *Globals {
	return &Globals{values: make(map[string]any)}
}

// Get returns the stored value for name.
func (g *Globals) Get(name string) (any, bool) {
	v, ok := g.values[name]
	return v, ok
}

// Set stores a value under name.
func (g *Globals) Set(name string, value any) {
	g.values[name] = value
}

// SetDefault stores value under name unless one is already present, and
// returns the value that ends up stored.
func (g *Globals) SetDefault(name string, value any) any {
	if v, ok := g.values[name]; ok {
		return v
	}
	g.values[name] = value
	return value
}

// Pop removes and returns the stored value for name, or nil.
func (g *Globals) Pop(name string) any {
	v := g.values[name]
	delete(g.values, name)
	return v
}

// AppContext binds one application to a scope. Pushing makes the application
// reachable through CurrentApp; the context is reference counted so nested
// pushes of the same context are safe and teardown fires exactly once.
type AppContext struct {
	app    *App
	scope  *Scope
	g      *Globals
	refcnt int
}

// AppContext creates an application context bound to scope. Push it before
// using CurrentApp or G outside of request handling, and pop it when done:
//
//	scope := mortar.NewScope()
//	ctx := app.AppContext(scope)
//	ctx.Push()
//	defer ctx.Pop(nil)
func (a *App) AppContext(scope *Scope) *AppContext {
	return &AppContext{app: a, scope: scope}
}

// App returns the application this context wraps.
func (ac *AppContext) App() *App {
	return ac.app
}

// G returns the globals scratch object. It exists only while the context is
// pushed.
func (ac *AppContext) G() *Globals {
	if ac.g == nil {
		panic(appContextErrMsg)
	}
	return ac.g
}

// Push makes this context current. Pushing an already-current context only
// increments its reference count.
func (ac *AppContext) Push() {
	if top, ok := ac.scope.app.top(); ok && top == ac {
		ac.refcnt++
		return
	}
	ac.refcnt = 1
	ac.g = newGlobals()
	ac.scope.app.push(ac)
	ac.app.AppContextPushed.Send(ac)
}

// Pop decrements the reference count and, when it reaches zero, runs the
// application-level teardown callbacks (passing err so they can distinguish
// clean from failed teardown), discards the globals, and removes the context
// from the stack. Popping a context that is not the current top is a fatal
// usage error.
func (ac *AppContext) Pop(err error) {
	ac.refcnt--
	if ac.refcnt > 0 {
		return
	}
	defer func() {
		ac.g = nil
		ac.scope.app.pop(ac)
		ac.app.AppContextPopped.Send(ac)
	}()
	ac.app.doTeardownAppContext(err)
}
