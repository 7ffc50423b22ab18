package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  base_url: https://signin.example.com
oauth:
  pending_ttl: 5m
  clients:
    GOOGLE:
      CLIENT_ID: google-client
      TOKEN_URL: https://oauth2.example.com/token
      AUTHORIZATION_URL: https://accounts.example.com/auth
      SCOPE: [openid, email]
      VERSION: "2.0"
      ACCESS_TYPE: offline
`

const secretYAML = `
oauth:
  clients:
    GOOGLE:
      CLIENT_SECRET: from-secret-file
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MergesLayersAndDefaults(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "default.yaml", baseYAML)
	secret := writeFile(t, dir, "secret.yaml", secretYAML)

	cfg, err := Load(base, filepath.Join(dir, "missing.yaml"), secret)
	require.NoError(t, err)

	google, ok := cfg.OAuth.Clients["google"]
	require.True(t, ok)
	assert.Equal(t, "google-client", google.ClientID)
	assert.Equal(t, "from-secret-file", google.ClientSecret)
	assert.Equal(t, []string{"openid", "email"}, google.Scope)
	assert.Equal(t, "offline", google.AccessType)
	assert.Equal(t, "https://signin.example.com/signin/google/complete", google.CallbackURL)
	assert.Equal(t, "/", google.PostSigninURL)

	assert.Equal(t, 5*time.Minute, cfg.OAuth.PendingTTL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "/signin", cfg.OAuth.SigninURL)
	assert.Equal(t, 24*time.Hour, cfg.Session.MaxAge)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "default.yaml", baseYAML)

	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("OAUTH_GOOGLE_CLIENT_SECRET", "from-env")

	cfg, err := Load(base)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, "from-env", cfg.OAuth.Clients["google"].ClientSecret)
}

func TestLoad_ProviderIDsIgnoreCase(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "default.yaml", baseYAML)
	secret := writeFile(t, dir, "secret.yaml", `
oauth:
  clients:
    google:
      CLIENT_SECRET: s
`)

	cfg, err := Load(base, secret)
	require.NoError(t, err)
	require.Len(t, cfg.OAuth.Clients, 1)

	google := cfg.OAuth.Clients["google"]
	assert.Equal(t, "google-client", google.ClientID)
	assert.Equal(t, "s", google.ClientSecret)
	assert.Equal(t, []string{"openid", "email"}, google.Scope)
}

func TestLoad_DuplicateProviderInOneFile(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "default.yaml", `
oauth:
  clients:
    GOOGLE:
      CLIENT_ID: a
    google:
      CLIENT_ID: b
`)

	_, err := Load(base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared more than once")
}

func TestLoad_MissingBaseFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestProvider_GetCallbackURL(t *testing.T) {
	p := Provider{}
	assert.Equal(t, "http://localhost:8080/signin/github/complete", p.GetCallbackURL("http://localhost:8080/", "GitHub"))

	p.CallbackURL = "https://cb.example.com"
	assert.Equal(t, "https://cb.example.com", p.GetCallbackURL("http://localhost:8080", "github"))
}
