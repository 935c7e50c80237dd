package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/webpay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore implements domain.SessionStore with plain Redis strings. The
// write-once rule is enforced by SETNX, so concurrent writers from several
// processes still leave exactly one value behind.
//
// Key schema:
//
//	{prefix}session:{key} - raw value, expires after the session TTL
type SessionStore struct {
	c   *Client
	ttl time.Duration
}

// NewSessionStore creates a SessionStore whose entries expire after ttl. A
// zero ttl keeps entries until they are removed by hand.
func NewSessionStore(c *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{c: c, ttl: ttl}
}

// Get returns the value stored under key.
func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.c.rdb.Get(ctx, s.c.key("session", key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: get session key %s: %w", key, err)
	}
	return val, true, nil
}

// SetOnce stores value unless key already holds one.
func (s *SessionStore) SetOnce(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.c.rdb.SetNX(ctx, s.c.key("session", key), value, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: set session key %s: %w", key, err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)
