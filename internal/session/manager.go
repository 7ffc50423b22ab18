package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// normalize applies defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = "signin_session"
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 24 * time.Hour
	}
	return o
}

// Manager binds sessions in a Store to browser cookies.
type Manager struct {
	store  Store
	opts   CookieOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a session manager.
func NewManager(store Store, opts CookieOptions, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, opts: opts.normalize(), logger: logger, now: time.Now}
}

// Load returns the session named by the request cookie, or a new empty
// session when there is none or it has expired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(m.opts.Name); err == nil {
		if id := strings.TrimSpace(cookie.Value); id != "" {
			s, err := m.store.Load(r.Context(), id)
			if err != nil {
				return nil, err
			}
			if s != nil {
				return s, nil
			}
		}
	}
	return New()
}

// Persist stores s without touching the cookie. Use it for changes made
// after Save once the response headers may already be written.
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = m.now().Add(m.opts.MaxAge)
	}
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Save stores s, extends its expiry and issues the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.ExpiresAt = m.now().Add(m.opts.MaxAge)
	if err := m.Persist(ctx, s); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.Name,
		Value:    s.ID,
		Path:     m.opts.Path,
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy empties s, deletes it from the store and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.Clear()
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.Name,
		Value:    "",
		Path:     m.opts.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s.ID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Renew moves s to a fresh id, keeping its values. The old id stops
// resolving. Call Save afterwards to issue the new cookie.
func (m *Manager) Renew(ctx context.Context, s *Session) error {
	id, err := GenerateID()
	if err != nil {
		return err
	}
	if s.ID != "" {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			m.logger.Warn("failed to delete renewed session", "error", err)
		}
	}
	s.ID = id
	return nil
}
