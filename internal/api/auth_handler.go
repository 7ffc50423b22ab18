package api

import (
	"net/http"
	"strings"

	"oauth-signin/internal/biz"
	"oauth-signin/internal/session"
	"oauth-signin/internal/signin"

	"github.com/gorilla/mux"
)

// sessionKeyNext holds the local page to return to after sign-in.
const sessionKeyNext = "signin_next"

// AuthHandler handles sign-in endpoints
type AuthHandler struct {
	coordinator *signin.Coordinator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(coordinator *signin.Coordinator) *AuthHandler {
	return &AuthHandler{coordinator: coordinator}
}

// RegisterRoutes registers sign-in routes
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.Handle("/signin/{provider}", h.coordinator.StartHandler(h.rememberNext)).Methods(http.MethodGet)
	r.Handle("/signin/{provider}/complete", h.coordinator.CompleteHandler(h.redirectNext)).Methods(http.MethodGet)
	r.Handle("/signout", h.coordinator.SignoutHandler("/")).Methods(http.MethodGet)
}

// rememberNext keeps the ?next= page across the provider round trip.
func (h *AuthHandler) rememberNext(_ http.ResponseWriter, r *http.Request, sess *session.Session) error {
	if next := r.URL.Query().Get("next"); isLocalPath(next) {
		sess.Set(sessionKeyNext, next)
	}
	return nil
}

// redirectNext sends the browser back to the remembered page, if any.
func (h *AuthHandler) redirectNext(w http.ResponseWriter, r *http.Request, sess *session.Session, _ *biz.NormalizedIdentity, _ *biz.User) error {
	next := sess.Get(sessionKeyNext)
	if next == "" {
		return nil
	}
	sess.Delete(sessionKeyNext)
	http.Redirect(w, r, next, http.StatusFound)
	return signin.ErrHandled
}

// isLocalPath rejects absolute and scheme-relative URLs (open redirects).
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
