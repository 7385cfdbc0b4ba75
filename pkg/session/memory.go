package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with TTL-based expiration. It is meant
// for tests and single-process deployments; sessions do not survive a
// restart.
type MemoryStore struct {
	sessions map[string]*Session // keyed by token
	done     chan struct{}
	mu       sync.RWMutex
	closed   bool
}

// NewMemoryStore creates an in-memory session store. When cleanupInterval is
// positive a background janitor removes expired sessions; call Close to stop
// it.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go m.janitor(cleanupInterval)
	}
	return m
}

// Create persists a new session.
func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = cloneSession(s)
	return nil
}

// Get retrieves a session by its token.
func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.IsExpired() {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return nil, ErrExpired
	}
	return cloneSession(s), nil
}

// Update saves changes to an existing session.
func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Token]; !ok {
		return ErrNotFound
	}
	m.sessions[s.Token] = cloneSession(s)
	return nil
}

// Delete removes a session by its token.
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// Close stops the background janitor, if one is running.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			for token, s := range m.sessions {
				if s.IsExpired() {
					delete(m.sessions, token)
				}
			}
			m.mu.Unlock()
		}
	}
}

// cloneSession copies a session so callers cannot mutate stored state
// without going through Update. The dirty and new flags describe the
// caller's in-flight instance, not the persisted state, so they are dropped
// like RedisStore drops them from its wire form: a loaded session is clean
// until something mutates it.
func cloneSession(s *Session) *Session {
	c := *s
	c.dirty = false
	c.isNew = false
	c.Values = make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		c.Values[k] = v
	}
	return &c
}
