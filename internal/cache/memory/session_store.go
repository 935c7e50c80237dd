// Package memory provides in-process session state, locks and rate limiting
// for single-instance deployments and tests.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/webpay/internal/domain"
)

// SessionStore keeps session entries in a map. Entries live for the lifetime
// of the process, which is the session for a single-instance deployment.
// It is safe for concurrent use.
type SessionStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *SessionStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// SetOnce stores value unless key already holds one.
func (s *SessionStore) SetOnce(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = append([]byte(nil), value...)
	return true, nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
