package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"oauth-signin/internal/api"
	"oauth-signin/internal/auth"
	"oauth-signin/internal/biz"
	"oauth-signin/internal/conf"
	"oauth-signin/internal/data"
	"oauth-signin/internal/service"
	"oauth-signin/internal/session"
	"oauth-signin/internal/signin"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	repo    biz.UserRepo
}

// newTestServer wires the full stack with a Redis session store backed by
// miniredis and a stub Google token endpoint.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"email": "a@b.com", "access_token": "tok"})
	}))
	t.Cleanup(tokenSrv.Close)

	factory := auth.NewFactory(nil)
	require.NoError(t, factory.Configure(context.Background(), map[string]conf.Provider{
		"GOOGLE": {
			ClientID:         "client",
			ClientSecret:     "secret",
			CallbackURL:      "http://app.example.com/signin/google/complete",
			TokenURL:         tokenSrv.URL,
			AuthorizationURL: "https://accounts.example.com/auth",
			PostSigninURL:    "/home",
		},
	}))

	repo, err := data.NewSQLiteUserRepo(filepath.Join(t.TempDir(), "signin.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := session.NewManager(session.NewRedisStore(client, "session:"), session.CookieOptions{}, nil)

	uc := biz.NewIdentityUsecase(repo)
	coordinator := signin.NewCoordinator(factory, sessions, uc,
		signin.Options{SigninURL: "/signin", PendingTTL: time.Minute}, nil)
	userService := service.NewUserService(uc)

	router := api.NewRouter(
		api.NewHealthHandler(userService, nil),
		api.NewAuthHandler(coordinator),
		api.NewUserHandler(userService, nil),
		coordinator.AuthRequired,
	)
	return &testServer{handler: router, repo: repo}
}

func (s *testServer) do(t *testing.T, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://app.example.com"+target, nil)
	req.Header.Set("Accept", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[len(cookies)-1]
}

// signIn runs a full google sign-in and returns the final response.
func (s *testServer) signIn(t *testing.T, startTarget string) *httptest.ResponseRecorder {
	t.Helper()
	rec := s.do(t, startTarget, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	state := loc.Query().Get("state")
	return s.do(t, "/signin/google/complete?code=c&state="+url.QueryEscape(state), cookieFrom(t, rec))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Zero(t, body.Users)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.signIn(t, "/signin/google")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	rec = s.do(t, "/api/me", cookieFrom(t, rec))
	require.Equal(t, http.StatusOK, rec.Code)

	var profile api.ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "a@b.com", profile.Email)
	require.Len(t, profile.Identities, 1)
	assert.Equal(t, "google", profile.Identities[0].Provider)
	assert.Equal(t, "a@b.com", profile.Identities[0].Identity)
	assert.NotContains(t, rec.Body.String(), "tok")
}

func TestSigninNext(t *testing.T) {
	s := newTestServer(t)

	rec := s.signIn(t, "/signin/google?next="+url.QueryEscape("/settings?tab=1"))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/settings?tab=1", rec.Header().Get("Location"))

	// the session cookie is issued even though the hook wrote the redirect
	rec = s.do(t, "/api/me", cookieFrom(t, rec))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSigninNext_IgnoresExternalTargets(t *testing.T) {
	s := newTestServer(t)

	for _, next := range []string{"https://evil.example.com", "//evil.example.com", "/\\evil.example.com"} {
		rec := s.signIn(t, "/signin/google?next="+url.QueryEscape(next))
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/home", rec.Header().Get("Location"), next)
	}
}

func TestSignout(t *testing.T) {
	s := newTestServer(t)

	rec := s.signIn(t, "/signin/google")
	authed := cookieFrom(t, rec)

	rec = s.do(t, "/signout", authed)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = s.do(t, "/api/me", authed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t, "/signin/google")

	rec := s.do(t, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signin_completed_total{outcome="success",provider="google"}`)
}
