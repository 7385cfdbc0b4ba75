package session

import (
	"errors"
	"time"
)

// Session carries per-client values across requests. Mutations mark the
// session dirty so it is persisted only when something actually changed.
type Session struct {
	CreatedAt time.Time
	ExpiresAt time.Time

	Values map[string]any
	ID     string // unique identifier (typically UUID)
	Token  string // cookie token, distinct from ID

	dirty bool
	isNew bool
	null  bool // reads allowed, writes rejected
}

// New creates a new session with the given ID and token.
func New(id, token string, expiresAt time.Time) *Session {
	return &Session{
		ID:        id,
		Token:     token,
		Values:    make(map[string]any),
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		isNew:     true,
		dirty:     true,
	}
}

// NewNull creates a read-only placeholder session. It is handed out when no
// secret key is configured so session reads degrade gracefully instead of
// panicking; SetValue and DeleteValue report ErrNullSession.
func NewNull() *Session {
	return &Session{null: true}
}

// IsNull reports whether this is a read-only placeholder session.
func (s *Session) IsNull() bool {
	return s.null
}

// SetValue stores a value in the session and marks it dirty.
// Returns ErrNullSession on a null session.
func (s *Session) SetValue(key string, val any) error {
	if s.null {
		return ErrNullSession
	}
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = val
	s.dirty = true
	return nil
}

// GetValue retrieves a value from the session.
func (s *Session) GetValue(key string) (any, bool) {
	if s.Values == nil {
		return nil, false
	}
	val, ok := s.Values[key]
	return val, ok
}

// DeleteValue removes a value from the session.
// Marks the session as dirty only if the key existed.
func (s *Session) DeleteValue(key string) error {
	if s.null {
		return ErrNullSession
	}
	if s.Values == nil {
		return nil
	}
	if _, exists := s.Values[key]; exists {
		delete(s.Values, key)
		s.dirty = true
	}
	return nil
}

// Clear removes all values and marks the session dirty.
func (s *Session) Clear() error {
	if s.null {
		return ErrNullSession
	}
	if len(s.Values) == 0 {
		return nil
	}
	s.Values = make(map[string]any)
	s.dirty = true
	return nil
}

// Len returns the number of stored values.
func (s *Session) Len() int {
	return len(s.Values)
}

// IsDirty returns true if the session has unsaved changes.
func (s *Session) IsDirty() bool {
	return s.dirty
}

// ClearDirty marks the session as clean. Called after persisting changes.
func (s *Session) ClearDirty() {
	s.dirty = false
}

// IsNew returns true if the session was just created.
func (s *Session) IsNew() bool {
	return s.isNew
}

// ClearNew marks the session as no longer new.
// Called after the session is first persisted.
func (s *Session) ClearNew() {
	s.isNew = false
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Value is a typed helper to retrieve session values with type safety.
// Returns an error if the key doesn't exist or type assertion fails.
func Value[T any](s *Session, key string) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotFound
	}

	val, ok := s.GetValue(key)
	if !ok {
		return zero, ErrNotFound
	}

	typed, ok := val.(T)
	if !ok {
		return zero, errors.New("session: type mismatch for key: " + key)
	}

	return typed, nil
}

// ValueOr is a typed helper that returns a default value if the key
// doesn't exist or type assertion fails.
func ValueOr[T any](s *Session, key string, defaultVal T) T {
	val, err := Value[T](s, key)
	if err != nil {
		return defaultVal
	}
	return val
}
