package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Expired sessions are
// dropped on read and by a periodic sweep.
type MemoryStore struct {
	sessions sync.Map // map[sessionID]*Session
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryStore creates a memory store that sweeps expired sessions every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{now: time.Now, stop: make(chan struct{})}
	if cleanupInterval <= 0 {
		cleanupInterval = 15 * time.Minute
	}
	// Start background cleanup goroutine
	go s.cleanupExpiredSessions(cleanupInterval)
	return s
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	val, ok := s.sessions.Load(id)
	if !ok {
		return nil, nil
	}
	sess := val.(*Session)

	// Check if expired
	if s.expired(sess) {
		s.sessions.Delete(id)
		return nil, nil
	}
	return clone(sess), nil
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	s.sessions.Store(sess.ID, clone(sess))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.sessions.Delete(id)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) expired(sess *Session) bool {
	return !sess.ExpiresAt.IsZero() && s.now().After(sess.ExpiresAt)
}

// cleanupExpiredSessions runs periodically to remove expired sessions
func (s *MemoryStore) cleanupExpiredSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.sessions.Range(func(key, value any) bool {
		if s.expired(value.(*Session)) {
			s.sessions.Delete(key)
		}
		return true
	})
}
