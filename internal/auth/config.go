package auth

import (
	"context"
	"fmt"
	"strings"

	"oauth-signin/internal/conf"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Protocol versions a provider may declare.
const (
	Version1 = "1.0"
	Version2 = "2.0"
)

// ProviderConfig is the validated, read-only configuration of one provider.
type ProviderConfig struct {
	conf.Provider

	// ID is the lower-cased provider id.
	ID string

	// verifier checks id_token signatures when the provider publishes keys.
	verifier *oidc.IDTokenVerifier
}

// NewProviderConfig validates p and normalizes its id and version.
func NewProviderConfig(ctx context.Context, id string, p conf.Provider) (*ProviderConfig, error) {
	cfg := &ProviderConfig{
		Provider: p,
		ID:       strings.ToLower(strings.TrimSpace(id)),
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: empty provider id", ErrConfiguration)
	}

	var missing []string
	for _, kv := range []struct{ key, value string }{
		{"CLIENT_ID", p.ClientID},
		{"CLIENT_SECRET", p.ClientSecret},
		{"CALLBACK_URL", p.CallbackURL},
		{"TOKEN_URL", p.TokenURL},
		{"AUTHORIZATION_URL", p.AuthorizationURL},
	} {
		if strings.TrimSpace(kv.value) == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: provider %q missing %s", ErrConfiguration, cfg.ID, strings.Join(missing, ", "))
	}

	switch cfg.Version {
	case "":
		cfg.Version = Version2
	case Version1, Version2:
	default:
		return nil, fmt.Errorf("%w: provider %q has unknown version %q", ErrConfiguration, cfg.ID, cfg.Version)
	}

	if cfg.Issuer != "" && cfg.JWKSURL != "" {
		keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
		cfg.verifier = oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{ClientID: cfg.ClientID})
	}

	return cfg, nil
}
