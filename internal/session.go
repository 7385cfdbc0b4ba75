package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mortarweb/mortar/pkg/session"
)

// SessionInterface loads a session at the start of a request and persists it
// while the response is being finalized. Implementations decide where session
// state lives; the dispatch pipeline only cares about Open and Save.
type SessionInterface interface {
	// Open returns the session for the request, a fresh one when the client
	// presented none, or a null session when the implementation cannot
	// operate (typically because no secret key is configured).
	Open(c *RequestContext) (*session.Session, error)

	// Save persists the session onto resp. It is only called for non-null
	// sessions and may skip the write when nothing changed.
	Save(c *RequestContext, s *session.Session, resp *Response) error
}

// respWriter adapts a buffered Response to the cookie manager, which writes
// Set-Cookie through the http.ResponseWriter Header method.
type respWriter struct{ resp *Response }

func (w respWriter) Header() http.Header { return w.resp.Header }

// cookieValues is the signed payload of a client-side session.
type cookieValues struct {
	Values    map[string]any `json:"v"`
	ExpiresAt time.Time      `json:"exp"`
}

// CookieSessionInterface keeps the whole session in a signed cookie on the
// client. Values survive restarts and need no storage, at the cost of the
// client being able to read (though not forge) them.
type CookieSessionInterface struct{}

// NewCookieSessionInterface creates the default client-side session backend.
func NewCookieSessionInterface() *CookieSessionInterface {
	return &CookieSessionInterface{}
}

func (si *CookieSessionInterface) Open(c *RequestContext) (*session.Session, error) {
	app := c.App()
	if !app.cookies.CanSign() {
		return session.NewNull(), nil
	}

	cfg := app.Config()
	raw, err := app.cookies.GetSigned(c.Request(), cfg.SessionCookieName)
	if err != nil {
		// Missing or tampered cookie both start a fresh session. Tampering
		// is not worth failing the request over, the forged values are
		// simply never seen.
		return freshSession(cfg.SessionLifetime), nil
	}

	var payload cookieValues
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return freshSession(cfg.SessionLifetime), nil
	}

	s := session.New(uuid.NewString(), "", payload.ExpiresAt)
	s.ClearNew()
	s.ClearDirty()
	if payload.Values != nil {
		s.Values = payload.Values
	}
	if s.IsExpired() {
		return freshSession(cfg.SessionLifetime), nil
	}
	return s, nil
}

func (si *CookieSessionInterface) Save(c *RequestContext, s *session.Session, resp *Response) error {
	if !s.IsDirty() {
		return nil
	}
	app := c.App()
	cfg := app.Config()

	// An emptied session deletes the cookie instead of storing "{}" forever.
	if s.Len() == 0 && !s.IsNew() {
		app.cookies.Delete(respWriter{resp}, cfg.SessionCookieName)
		s.ClearDirty()
		return nil
	}

	payload, err := json.Marshal(cookieValues{Values: s.Values, ExpiresAt: s.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	maxAge := int(time.Until(s.ExpiresAt) / time.Second)
	if err := app.cookies.SetSigned(respWriter{resp}, cfg.SessionCookieName, string(payload), maxAge); err != nil {
		return fmt.Errorf("write session cookie: %w", err)
	}
	s.ClearDirty()
	s.ClearNew()
	return nil
}

// StoreSessionInterface keeps session values server-side in a session.Store
// and hands the client only an opaque signed token.
type StoreSessionInterface struct {
	store session.Store
}

// NewStoreSessionInterface creates a server-side session backend on top of
// the given store.
func NewStoreSessionInterface(store session.Store) *StoreSessionInterface {
	return &StoreSessionInterface{store: store}
}

func (si *StoreSessionInterface) Open(c *RequestContext) (*session.Session, error) {
	app := c.App()
	if !app.cookies.CanSign() {
		return session.NewNull(), nil
	}

	cfg := app.Config()
	token, err := app.cookies.GetSigned(c.Request(), cfg.SessionCookieName)
	if err != nil {
		return freshSession(cfg.SessionLifetime), nil
	}

	s, err := si.store.Get(c, token)
	if err != nil {
		switch err {
		case session.ErrNotFound, session.ErrExpired:
			return freshSession(cfg.SessionLifetime), nil
		default:
			return nil, fmt.Errorf("load session %s: %w", token, err)
		}
	}
	// A loaded session is clean whatever flags the store kept: Save must
	// only run again when this request mutates it.
	s.ClearDirty()
	s.ClearNew()
	return s, nil
}

func (si *StoreSessionInterface) Save(c *RequestContext, s *session.Session, resp *Response) error {
	if !s.IsDirty() {
		return nil
	}
	app := c.App()
	cfg := app.Config()

	if s.Len() == 0 && !s.IsNew() {
		if err := si.store.Delete(c, s.Token); err != nil {
			return fmt.Errorf("delete session %s: %w", s.Token, err)
		}
		app.cookies.Delete(respWriter{resp}, cfg.SessionCookieName)
		s.ClearDirty()
		return nil
	}

	if s.IsNew() {
		if err := si.store.Create(c, s); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		maxAge := int(time.Until(s.ExpiresAt) / time.Second)
		if err := app.cookies.SetSigned(respWriter{resp}, cfg.SessionCookieName, s.Token, maxAge); err != nil {
			return fmt.Errorf("write session cookie: %w", err)
		}
		s.ClearNew()
	} else if err := si.store.Update(c, s); err != nil {
		return fmt.Errorf("update session %s: %w", s.Token, err)
	}
	s.ClearDirty()
	return nil
}

// freshSession creates an empty session that is not yet dirty: clients that
// never store anything never receive a session cookie.
func freshSession(lifetime time.Duration) *session.Session {
	s := session.New(uuid.NewString(), uuid.NewString(), time.Now().Add(lifetime))
	s.ClearDirty()
	return s
}
