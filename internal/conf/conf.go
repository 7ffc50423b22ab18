package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the config structure.
type Config struct {
	Server  Server  `yaml:"server"`
	Data    Data    `yaml:"data"`
	Session Session `yaml:"session"`
	OAuth   OAuth   `yaml:"oauth"`
}

// Server is the server config.
type Server struct {
	BaseURL string `yaml:"base_url"`
	Addr    string `yaml:"addr"`
}

// Data is the persistence config.
type Data struct {
	Database string `yaml:"database"`
}

// Session configures where session state lives and how the cookie is issued.
type Session struct {
	Store         string        `yaml:"store"` // "memory" or "redis"
	CookieName    string        `yaml:"cookie_name"`
	Secure        bool          `yaml:"secure"`
	MaxAge        time.Duration `yaml:"max_age"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

// OAuth is the sign-in config.
type OAuth struct {
	// SigninURL is where unauthenticated browsers are sent.
	SigninURL string `yaml:"signin_url"`
	// PostSigninURL is used when a provider does not set POST_SIGNIN_URL.
	PostSigninURL string `yaml:"post_signin_url"`
	// PendingTTL bounds how long a started sign-in may wait for its callback.
	PendingTTL time.Duration `yaml:"pending_ttl"`
	// Clients maps provider id to provider settings. Ids are case-insensitive
	// and stored lower case after Load.
	Clients map[string]Provider `yaml:"clients"`
}

// Provider holds the settings of one OAuth provider.
// Keys are upper case to match the settings files shipped with deployments.
type Provider struct {
	ClientID         string   `yaml:"CLIENT_ID"`
	ClientSecret     string   `yaml:"CLIENT_SECRET"`
	CallbackURL      string   `yaml:"CALLBACK_URL"`
	TokenURL         string   `yaml:"TOKEN_URL"`
	AuthorizationURL string   `yaml:"AUTHORIZATION_URL"`
	Scope            []string `yaml:"SCOPE"`
	Version          string   `yaml:"VERSION"`
	PostSigninURL    string   `yaml:"POST_SIGNIN_URL"`
	AccessType       string   `yaml:"ACCESS_TYPE"` // optional
	Issuer           string   `yaml:"ISSUER"`      // optional, enables id_token verification with JWKSURL
	JWKSURL          string   `yaml:"JWKS_URL"`    // optional
}

// GetCallbackURL returns the provider callback URL
// If CallbackURL is explicitly configured, use it
// Otherwise, construct from server base_url + the signin completion path
func (p *Provider) GetCallbackURL(serverBaseURL, providerID string) string {
	if p.CallbackURL != "" {
		return p.CallbackURL
	}
	return strings.TrimRight(serverBaseURL, "/") + "/signin/" + strings.ToLower(providerID) + "/complete"
}

// envOverrides are the settings that may be replaced from the environment.
type envOverrides struct {
	BaseURL       string `env:"SERVER_BASE_URL"`
	Addr          string `env:"SERVER_ADDR"`
	Database      string `env:"DATABASE_PATH"`
	SessionStore  string `env:"SESSION_STORE"`
	RedisAddr     string `env:"SESSION_REDIS_ADDR"`
	RedisPassword string `env:"SESSION_REDIS_PASSWORD"`
}

// Load loads config from the file at path, then merges each override file
// on top of it in order. Missing override files are skipped so a deployment
// can ship only the layers it needs (e.g. a secrets file kept out of source
// control).
func Load(path string, overrides ...string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	for _, p := range overrides {
		if p == "" {
			continue
		}
		layer, err := readFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := merge(cfg, layer); err != nil {
			return nil, fmt.Errorf("merge %s: %w", p, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := normalizeClients(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// normalizeClients lower-cases provider ids so layers written with
// different casing land on the same entry.
func normalizeClients(cfg *Config) error {
	if len(cfg.OAuth.Clients) == 0 {
		return nil
	}
	clients := make(map[string]Provider, len(cfg.OAuth.Clients))
	for id, p := range cfg.OAuth.Clients {
		key := strings.ToLower(strings.TrimSpace(id))
		if _, dup := clients[key]; dup {
			return fmt.Errorf("provider %q declared more than once", key)
		}
		clients[key] = p
	}
	cfg.OAuth.Clients = clients
	return nil
}

// merge lays src over dst. Provider entries are merged field by field since
// mergo replaces struct values held in maps as a whole.
func merge(dst, src *Config) error {
	clients := src.OAuth.Clients
	src.OAuth.Clients = nil
	if err := mergo.Merge(dst, *src, mergo.WithOverride); err != nil {
		return err
	}

	if len(clients) > 0 && dst.OAuth.Clients == nil {
		dst.OAuth.Clients = make(map[string]Provider, len(clients))
	}
	for id, p := range clients {
		base := dst.OAuth.Clients[id]
		if err := mergo.Merge(&base, p, mergo.WithOverride); err != nil {
			return fmt.Errorf("provider %s: %w", id, err)
		}
		dst.OAuth.Clients[id] = base
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if raw.BaseURL != "" {
		cfg.Server.BaseURL = raw.BaseURL
	}
	if raw.Addr != "" {
		cfg.Server.Addr = raw.Addr
	}
	if raw.Database != "" {
		cfg.Data.Database = raw.Database
	}
	if raw.SessionStore != "" {
		cfg.Session.Store = raw.SessionStore
	}
	if raw.RedisAddr != "" {
		cfg.Session.RedisAddr = raw.RedisAddr
	}
	if raw.RedisPassword != "" {
		cfg.Session.RedisPassword = raw.RedisPassword
	}

	// Override provider secrets from env vars if present, e.g. OAUTH_GOOGLE_CLIENT_SECRET
	for id, p := range cfg.OAuth.Clients {
		if secret := os.Getenv("OAUTH_" + strings.ToUpper(id) + "_CLIENT_SECRET"); secret != "" {
			p.ClientSecret = secret
			cfg.OAuth.Clients[id] = p
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Data.Database == "" {
		cfg.Data.Database = "data/signin.db"
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "signin_session"
	}
	if cfg.Session.MaxAge == 0 {
		cfg.Session.MaxAge = 24 * time.Hour
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "session:"
	}
	if cfg.OAuth.SigninURL == "" {
		cfg.OAuth.SigninURL = "/signin"
	}
	if cfg.OAuth.PostSigninURL == "" {
		cfg.OAuth.PostSigninURL = "/"
	}
	if cfg.OAuth.PendingTTL == 0 {
		cfg.OAuth.PendingTTL = 10 * time.Minute
	}

	for id, p := range cfg.OAuth.Clients {
		p.CallbackURL = p.GetCallbackURL(cfg.Server.BaseURL, id)
		if p.PostSigninURL == "" {
			p.PostSigninURL = cfg.OAuth.PostSigninURL
		}
		cfg.OAuth.Clients[id] = p
	}
}
