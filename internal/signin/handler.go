package signin

import (
	"encoding/json"
	"errors"
	"net/http"

	"oauth-signin/internal/auth"
	"oauth-signin/internal/biz"
	"oauth-signin/internal/session"

	"github.com/gorilla/mux"
)

// ErrHandled is returned by a hook that has written its own response.
// The handler stops without writing anything further.
var ErrHandled = errors.New("signin: response handled by hook")

// PreSigninHook runs at the start of a sign-in, after the session has been
// cleared and before the provider redirect is built.
type PreSigninHook func(w http.ResponseWriter, r *http.Request, sess *session.Session) error

// CompleteHook runs after a successful sign-in, before the redirect to the
// provider's post-signin URL.
type CompleteHook func(w http.ResponseWriter, r *http.Request, sess *session.Session, ni *biz.NormalizedIdentity, user *biz.User) error

// StartHandler handles GET /signin/{provider}.
func (c *Coordinator) StartHandler(pre PreSigninHook) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerID := mux.Vars(r)["provider"]

		sess, err := c.sessions.Load(r)
		if err != nil {
			c.serverError(w, r, err)
			return
		}

		var hook func(*session.Session) error
		if pre != nil {
			hook = func(s *session.Session) error { return pre(w, r, s) }
		}

		authURL, err := c.Start(r.Context(), sess, providerID, hook)
		if errors.Is(err, ErrHandled) {
			if persistErr := c.sessions.Persist(r.Context(), sess); persistErr != nil {
				c.logger.Error("failed to save session", "error", persistErr)
			}
			return
		}
		if err != nil {
			// the session was cleared; a failed start still ends any earlier flow
			if saveErr := c.sessions.Save(r.Context(), w, sess); saveErr != nil {
				c.logger.Error("failed to save session", "error", saveErr)
			}
			c.serverError(w, r, err)
			return
		}

		if err := c.sessions.Save(r.Context(), w, sess); err != nil {
			c.serverError(w, r, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	})
}

// CompleteHandler handles GET /signin/{provider}/complete.
func (c *Coordinator) CompleteHandler(post CompleteHook) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerID := mux.Vars(r)["provider"]

		sess, err := c.sessions.Load(r)
		if err != nil {
			c.serverError(w, r, err)
			return
		}

		ni, user, err := c.Complete(r.Context(), sess, providerID, requestURL(r))
		if errors.Is(err, auth.ErrUnauthorized) {
			c.Unauthorized(w, r, sess)
			return
		}
		if err != nil {
			// keep the cleared pending state
			if saveErr := c.sessions.Save(r.Context(), w, sess); saveErr != nil {
				c.logger.Error("failed to save session", "error", saveErr)
			}
			c.serverError(w, r, err)
			return
		}

		// new id for the authenticated session
		if err := c.sessions.Renew(r.Context(), sess); err != nil {
			c.serverError(w, r, err)
			return
		}

		// The cookie goes out before the hook may write a response.
		if err := c.sessions.Save(r.Context(), w, sess); err != nil {
			c.serverError(w, r, err)
			return
		}

		if post != nil {
			err := post(w, r, sess, ni, user)
			if persistErr := c.sessions.Persist(r.Context(), sess); persistErr != nil {
				c.logger.Error("failed to save session", "error", persistErr)
			}
			if errors.Is(err, ErrHandled) {
				return
			}
			if err != nil {
				c.serverError(w, r, err)
				return
			}
		}

		target := c.factory.PostSigninURL(providerID)
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// SignoutHandler destroys the session and redirects to redirectTo.
func (c *Coordinator) SignoutHandler(redirectTo string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := c.sessions.Load(r)
		if err != nil {
			c.serverError(w, r, err)
			return
		}
		if err := c.sessions.Destroy(r.Context(), w, sess); err != nil {
			c.logger.Error("failed to destroy session", "error", err)
		}
		http.Redirect(w, r, redirectTo, http.StatusFound)
	})
}

// AuthRequired lets the request through only when the session is
// authenticated, putting the user id in the request context.
func (c *Coordinator) AuthRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := c.sessions.Load(r)
		if err != nil {
			c.serverError(w, r, err)
			return
		}

		userID := sess.Get(KeyUserID)
		if userID == "" {
			c.Unauthorized(w, r, sess)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Unauthorized clears the session, then answers with a JSON 401 when the
// client prefers JSON over HTML, or redirects to the sign-in page.
func (c *Coordinator) Unauthorized(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if sess != nil {
		if err := c.sessions.Destroy(r.Context(), w, sess); err != nil {
			c.logger.Error("failed to destroy session", "error", err)
		}
	}

	if PrefersJSON(r) {
		writeUnauthorized(w, "authentication required")
		return
	}
	http.Redirect(w, r, c.signinURL, http.StatusFound)
}

func (c *Coordinator) serverError(w http.ResponseWriter, r *http.Request, err error) {
	c.logger.ErrorContext(r.Context(), "signin request failed", "path", r.URL.Path, "error", err)

	code := "internal_error"
	if errors.Is(err, auth.ErrProviderNotFound) || errors.Is(err, auth.ErrProviderConfigMissing) {
		code = "provider_unavailable"
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": code})
}

// requestURL rebuilds the absolute URL the provider redirected to.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
