package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions in Redis, serialized as JSON. Expiration is
// delegated to Redis via key TTLs derived from each session's ExpiresAt.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// redisSession is the wire form of a Session. The unexported lifecycle
// flags are deliberately not persisted.
type redisSession struct {
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Values    map[string]any `json:"values"`
	ID        string         `json:"id"`
	Token     string         `json:"token"`
}

// NewRedisStore creates a Redis-backed session store. Keys are namespaced
// under the given prefix; an empty prefix defaults to "session".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Create persists a new session.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if s.Token == "" {
		return ErrInvalidToken
	}
	return r.write(ctx, s)
}

// Get retrieves a session by its token.
func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rs redisSession
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, err
	}

	s := &Session{
		ID:        rs.ID,
		Token:     rs.Token,
		Values:    rs.Values,
		CreatedAt: rs.CreatedAt,
		ExpiresAt: rs.ExpiresAt,
	}
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	if s.IsExpired() {
		// TTL should have removed it already; treat as expired either way.
		_ = r.client.Del(ctx, r.key(token)).Err()
		return nil, ErrExpired
	}
	return s, nil
}

// Update saves changes to an existing session.
func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	exists, err := r.client.Exists(ctx, r.key(s.Token)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return r.write(ctx, s)
}

// Delete removes a session by its token.
func (r *RedisStore) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	data, err := json.Marshal(redisSession{
		ID:        s.ID,
		Token:     s.Token,
		Values:    s.Values,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = time.Until(s.ExpiresAt)
		if ttl <= 0 {
			return ErrExpired
		}
	}
	return r.client.Set(ctx, r.key(s.Token), data, ttl).Err()
}

func (r *RedisStore) key(token string) string {
	return r.prefix + ":" + token
}
