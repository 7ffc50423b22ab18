// Package signin runs the two-request OAuth sign-in flow: Start sends the
// browser to the provider, Complete handles the provider's callback and
// links the returned identity to a local user.
package signin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"oauth-signin/internal/auth"
	"oauth-signin/internal/biz"
	"oauth-signin/internal/session"
)

// Session keys.
const (
	// KeyUserID marks an authenticated session.
	KeyUserID = "user_id"

	keyProvider  = "oauth_provider"
	keyState     = "oauth_state" // OAuth2 pending value
	keyToken     = "oauth_token" // OAuth1 pending value
	keyStartedAt = "oauth_started_at"
)

// ClientFactory creates provider clients.
type ClientFactory interface {
	CreateClient(providerID string, resume auth.Resume) (auth.Client, error)
	PostSigninURL(providerID string) string
}

// IdentityResolver links a provider identity to a local user.
type IdentityResolver interface {
	GetOrCreateUserByIdentity(ctx context.Context, ni *biz.NormalizedIdentity) (*biz.User, error)
}

// Options configures a Coordinator.
type Options struct {
	// SigninURL is where browsers without a session are redirected.
	SigninURL string
	// PendingTTL bounds the time between Start and Complete. Zero disables the check.
	PendingTTL time.Duration
}

// Coordinator drives sign-in flows and owns their session state.
type Coordinator struct {
	factory    ClientFactory
	sessions   *session.Manager
	identities IdentityResolver
	signinURL  string
	pendingTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewCoordinator creates a sign-in coordinator.
func NewCoordinator(factory ClientFactory, sessions *session.Manager, identities IdentityResolver, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SigninURL == "" {
		opts.SigninURL = "/signin"
	}
	return &Coordinator{
		factory:    factory,
		sessions:   sessions,
		identities: identities,
		signinURL:  opts.SigninURL,
		pendingTTL: opts.PendingTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Start clears sess, runs pre, and records a pending sign-in for providerID.
// It returns the provider URL to redirect the browser to.
func (c *Coordinator) Start(ctx context.Context, sess *session.Session, providerID string, pre func(*session.Session) error) (string, error) {
	sess.Clear()

	if pre != nil {
		if err := pre(sess); err != nil {
			return "", err
		}
	}

	client, err := c.factory.CreateClient(providerID, auth.Resume{})
	if err != nil {
		return "", err
	}

	key, err := pendingKey(client)
	if err != nil {
		return "", err
	}

	authURL, resume, err := client.Authorize()
	if err != nil {
		return "", err
	}

	sess.Set(keyProvider, client.ProviderID())
	sess.Set(key, resume)
	sess.Set(keyStartedAt, strconv.FormatInt(c.now().UnixMilli(), 10))

	signinStarted.WithLabelValues(client.ProviderID()).Inc()
	c.logger.InfoContext(ctx, "signin started", "provider", client.ProviderID())
	return authURL, nil
}

// Complete resumes the flow recorded in sess with the provider's callback,
// resolves the local user and marks sess as authenticated. The pending
// sign-in is removed from sess whatever the outcome.
func (c *Coordinator) Complete(ctx context.Context, sess *session.Session, providerID, callbackURL string) (*biz.NormalizedIdentity, *biz.User, error) {
	resume := auth.Resume{State: sess.Get(keyState), Token: sess.Get(keyToken)}
	pendingProvider := sess.Get(keyProvider)
	startedAt := sess.Get(keyStartedAt)
	sess.Delete(keyProvider, keyState, keyToken, keyStartedAt)

	client, err := c.factory.CreateClient(providerID, resume)
	if err != nil {
		return nil, nil, err
	}
	provider := client.ProviderID()

	ni, user, err := c.complete(ctx, client, pendingProvider, startedAt, callbackURL)
	switch {
	case err == nil:
		sess.Set(KeyUserID, user.ID)
		signinCompleted.WithLabelValues(provider, "success").Inc()
		c.logger.InfoContext(ctx, "signin completed", "provider", provider, "user_id", user.ID)
	case errors.Is(err, auth.ErrUnauthorized):
		signinCompleted.WithLabelValues(provider, "unauthorized").Inc()
		c.logger.WarnContext(ctx, "signin rejected", "provider", provider, "error", err)
	default:
		signinCompleted.WithLabelValues(provider, "error").Inc()
	}
	return ni, user, err
}

func (c *Coordinator) complete(ctx context.Context, client auth.Client, pendingProvider, startedAt, callbackURL string) (*biz.NormalizedIdentity, *biz.User, error) {
	if pendingProvider != client.ProviderID() {
		return nil, nil, fmt.Errorf("%w: no pending sign-in for %q", auth.ErrUnauthorized, client.ProviderID())
	}
	if c.expired(startedAt) {
		return nil, nil, fmt.Errorf("%w: pending sign-in expired", auth.ErrUnauthorized)
	}
	if _, err := pendingKey(client); err != nil {
		return nil, nil, err
	}

	ni, err := client.FetchAndParseToken(ctx, callbackURL)
	if err != nil {
		return nil, nil, err
	}

	user, err := c.identities.GetOrCreateUserByIdentity(ctx, ni)
	if err != nil {
		return nil, nil, err
	}
	return ni, user, nil
}

func (c *Coordinator) expired(startedAt string) bool {
	if c.pendingTTL <= 0 {
		return false
	}
	ms, err := strconv.ParseInt(startedAt, 10, 64)
	if err != nil {
		return true
	}
	return c.now().Sub(time.UnixMilli(ms)) > c.pendingTTL
}

// pendingKey is the session key holding the client's resumable value.
// Only OAuth2 flows can be run.
func pendingKey(client auth.Client) (string, error) {
	switch v := client.Version(); v {
	case auth.Version2:
		return keyState, nil
	case auth.Version1:
		return "", fmt.Errorf("%w: provider %q uses OAuth 1.0, which is not supported", auth.ErrConfiguration, client.ProviderID())
	default:
		return "", fmt.Errorf("%w: provider %q has unknown version %q", auth.ErrConfiguration, client.ProviderID(), v)
	}
}
