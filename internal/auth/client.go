package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"

	"oauth-signin/internal/biz"

	"golang.org/x/oauth2"
)

// Client runs one authorization-code flow against a provider.
type Client interface {
	ProviderID() string
	// Version reports the protocol version, "1.0" or "2.0".
	Version() string
	// Authorize returns the provider redirect URL and the value the caller
	// must keep to resume the flow.
	Authorize() (authURL, state string, err error)
	// FetchAndParseToken exchanges the callback for a token and maps the
	// provider's response to an identity.
	FetchAndParseToken(ctx context.Context, callbackURL string) (*biz.NormalizedIdentity, error)
}

// Resume carries the values stashed by Authorize into the second request.
// Only the one matching the provider's version is used.
type Resume struct {
	State string // OAuth2
	Token string // OAuth1
}

// Constructor builds a client for a configured provider.
type Constructor func(cfg *ProviderConfig, resume Resume) (Client, error)

// TokenParser maps a provider's token response to an identity.
type TokenParser interface {
	ParseTokenResponse(ctx context.Context, tok *oauth2.Token) (*biz.NormalizedIdentity, error)
}

// OAuth2Client implements the shared OAuth2 exchange; providers plug in a
// TokenParser for the payload mapping.
type OAuth2Client struct {
	cfg          *ProviderConfig
	oauth2Config oauth2.Config
	state        string
	parser       TokenParser
}

// NewOAuth2Client creates a new OAuth2 client
func NewOAuth2Client(cfg *ProviderConfig, resume Resume, parser TokenParser) *OAuth2Client {
	return &OAuth2Client{
		cfg: cfg,
		oauth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: cfg.Scope,
		},
		state:  resume.State,
		parser: parser,
	}
}

func (c *OAuth2Client) ProviderID() string { return c.cfg.ID }

func (c *OAuth2Client) Version() string { return c.cfg.Version }

// Authorize returns the authorization URL with a fresh CSRF state, or the
// resumed one when the client was built to continue a flow.
func (c *OAuth2Client) Authorize() (string, string, error) {
	state := c.state
	if state == "" {
		var err error
		if state, err = GenerateState(); err != nil {
			return "", "", err
		}
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if c.cfg.AccessType != "" {
		opts = append(opts, oauth2.SetAuthURLParam("access_type", c.cfg.AccessType))
	}
	return c.oauth2Config.AuthCodeURL(state, opts...), state, nil
}

// FetchToken checks the callback URL against the resumed state and exchanges
// its code for a token.
func (c *OAuth2Client) FetchToken(ctx context.Context, callbackURL string) (*oauth2.Token, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed callback url", ErrUnauthorized)
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		return nil, fmt.Errorf("%w: provider returned %q", ErrUnauthorized, e)
	}
	// Verify state (CSRF protection)
	if c.state == "" || subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(c.state)) != 1 {
		return nil, fmt.Errorf("%w: state mismatch", ErrUnauthorized)
	}
	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrUnauthorized)
	}

	tok, err := c.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %w", ErrUnauthorized, err)
	}
	return tok, nil
}

// FetchAndParseToken exchanges the callback and hands the token to the parser.
func (c *OAuth2Client) FetchAndParseToken(ctx context.Context, callbackURL string) (*biz.NormalizedIdentity, error) {
	tok, err := c.FetchToken(ctx, callbackURL)
	if err != nil {
		return nil, err
	}
	ni, err := c.parser.ParseTokenResponse(ctx, tok)
	if err != nil {
		return nil, err
	}
	ni.ProviderID = c.cfg.ID
	return ni, nil
}

// GenerateState returns 32 random bytes, base64url encoded.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func tokenFromOAuth2(tok *oauth2.Token) biz.Token {
	return biz.Token{
		Type:         tok.Type(),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
