// Package session keeps per-browser state between requests. The browser only
// holds an opaque id in a cookie; values live in a Store.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Session is the server-side state of one browser session.
type Session struct {
	ID        string            `json:"id"`
	Values    map[string]string `json:"values"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// New returns an empty session with a fresh id.
func New() (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Values: make(map[string]string)}, nil
}

// Get returns the value stored under key, or "" when absent.
func (s *Session) Get(key string) string {
	return s.Values[key]
}

// Lookup is Get with a presence flag.
func (s *Session) Lookup(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
}

func (s *Session) Delete(keys ...string) {
	for _, k := range keys {
		delete(s.Values, k)
	}
}

// Clear removes every value.
func (s *Session) Clear() {
	s.Values = make(map[string]string)
}

// Store defines how sessions are stored and retrieved.
type Store interface {
	// Load returns nil, nil when the session does not exist or has expired.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// GenerateID generates a cryptographically secure session ID.
// 32 bytes = 256 bits of entropy.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func clone(s *Session) *Session {
	c := &Session{ID: s.ID, ExpiresAt: s.ExpiresAt, Values: make(map[string]string, len(s.Values))}
	for k, v := range s.Values {
		c.Values[k] = v
	}
	return c
}
