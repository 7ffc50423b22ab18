package signin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"oauth-signin/internal/auth"
	"oauth-signin/internal/biz"
	"oauth-signin/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id      string
	version string
	ni      *biz.NormalizedIdentity
	err     error
}

func (c *fakeClient) ProviderID() string { return c.id }
func (c *fakeClient) Version() string    { return c.version }

func (c *fakeClient) Authorize() (string, string, error) {
	return "https://" + c.id + ".example.com/auth", "state-" + c.id, nil
}

func (c *fakeClient) FetchAndParseToken(context.Context, string) (*biz.NormalizedIdentity, error) {
	return c.ni, c.err
}

type fakeFactory struct {
	clients    map[string]*fakeClient
	lastResume auth.Resume
}

func (f *fakeFactory) CreateClient(id string, resume auth.Resume) (auth.Client, error) {
	f.lastResume = resume
	c, ok := f.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", auth.ErrProviderNotFound, id)
	}
	return c, nil
}

func (f *fakeFactory) PostSigninURL(string) string { return "/" }

type fakeResolver struct {
	calls int
	err   error
}

func (r *fakeResolver) GetOrCreateUserByIdentity(_ context.Context, ni *biz.NormalizedIdentity) (*biz.User, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &biz.User{ID: "user-" + ni.Identity}, nil
}

func newFakeCoordinator(t *testing.T, clients ...*fakeClient) (*Coordinator, *fakeFactory, *fakeResolver) {
	t.Helper()
	f := &fakeFactory{clients: make(map[string]*fakeClient)}
	for _, c := range clients {
		f.clients[c.id] = c
	}
	store := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })
	res := &fakeResolver{}
	c := NewCoordinator(f, session.NewManager(store, session.CookieOptions{}, nil), res,
		Options{SigninURL: "/signin", PendingTTL: 10 * time.Minute}, nil)
	return c, f, res
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New()
	require.NoError(t, err)
	return s
}

func TestStart_RecordsPendingSignin(t *testing.T) {
	c, _, _ := newFakeCoordinator(t, &fakeClient{id: "alpha", version: auth.Version2})
	sess := newSession(t)
	sess.Set(KeyUserID, "someone")

	authURL, err := c.Start(context.Background(), sess, "alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://alpha.example.com/auth", authURL)

	assert.Equal(t, "alpha", sess.Get(keyProvider))
	assert.Equal(t, "state-alpha", sess.Get(keyState))
	assert.NotEmpty(t, sess.Get(keyStartedAt))
	_, hasToken := sess.Lookup(keyToken)
	assert.False(t, hasToken)
	_, hasUser := sess.Lookup(KeyUserID)
	assert.False(t, hasUser)
}

func TestStart_SecondStartDiscardsFirst(t *testing.T) {
	c, _, _ := newFakeCoordinator(t,
		&fakeClient{id: "alpha", version: auth.Version2},
		&fakeClient{id: "beta", version: auth.Version2},
	)
	sess := newSession(t)
	ctx := context.Background()

	_, err := c.Start(ctx, sess, "alpha", func(s *session.Session) error {
		s.Set("next", "/alpha-page")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/alpha-page", sess.Get("next"))

	_, err = c.Start(ctx, sess, "beta", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		keyProvider:  "beta",
		keyState:     "state-beta",
		keyStartedAt: sess.Get(keyStartedAt),
	}, sess.Values)
}

func TestStart_HookRunsAfterClear(t *testing.T) {
	c, _, _ := newFakeCoordinator(t, &fakeClient{id: "alpha", version: auth.Version2})
	sess := newSession(t)
	sess.Set("stale", "x")

	stop := errors.New("stop")
	_, err := c.Start(context.Background(), sess, "alpha", func(s *session.Session) error {
		assert.Empty(t, s.Values)
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Empty(t, sess.Get(keyState))
}

func TestStart_RejectsUnsupportedVersion(t *testing.T) {
	c, _, _ := newFakeCoordinator(t,
		&fakeClient{id: "legacy", version: auth.Version1},
		&fakeClient{id: "odd", version: "9"},
	)

	for _, id := range []string{"legacy", "odd"} {
		sess := newSession(t)
		_, err := c.Start(context.Background(), sess, id, nil)
		require.ErrorIs(t, err, auth.ErrConfiguration)
		assert.Empty(t, sess.Values)
	}
}

func TestStart_UnknownProvider(t *testing.T) {
	c, _, _ := newFakeCoordinator(t)
	_, err := c.Start(context.Background(), newSession(t), "nope", nil)
	require.ErrorIs(t, err, auth.ErrProviderNotFound)
}

func TestComplete_Success(t *testing.T) {
	client := &fakeClient{id: "alpha", version: auth.Version2,
		ni: &biz.NormalizedIdentity{ProviderID: "alpha", Identity: "a@b.com"}}
	c, f, res := newFakeCoordinator(t, client)
	sess := newSession(t)
	ctx := context.Background()

	_, err := c.Start(ctx, sess, "alpha", nil)
	require.NoError(t, err)
	sess.Set(keyToken, "oauth1-token")

	ni, user, err := c.Complete(ctx, sess, "alpha", "https://app/cb?code=x&state=state-alpha")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", ni.Identity)
	assert.Equal(t, "user-a@b.com", user.ID)
	assert.Equal(t, 1, res.calls)

	// both resumable values are forwarded
	assert.Equal(t, auth.Resume{State: "state-alpha", Token: "oauth1-token"}, f.lastResume)

	// pending state is gone, user marker set
	assert.Equal(t, map[string]string{KeyUserID: "user-a@b.com"}, sess.Values)
}

func TestComplete_Unauthorized(t *testing.T) {
	rejected := fmt.Errorf("%w: no email", auth.ErrUnauthorized)

	tests := []struct {
		name  string
		setup func(c *Coordinator, sess *session.Session)
		err   error
	}{
		{
			name:  "provider rejects",
			setup: func(*Coordinator, *session.Session) {},
			err:   rejected,
		},
		{
			name: "no pending signin",
			setup: func(_ *Coordinator, sess *session.Session) {
				sess.Clear()
			},
		},
		{
			name: "pending for another provider",
			setup: func(_ *Coordinator, sess *session.Session) {
				sess.Set(keyProvider, "beta")
			},
		},
		{
			name: "pending expired",
			setup: func(c *Coordinator, _ *session.Session) {
				c.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{id: "alpha", version: auth.Version2,
				ni: &biz.NormalizedIdentity{ProviderID: "alpha", Identity: "a@b.com"}, err: tt.err}
			if tt.err != nil {
				client.ni = nil
			}
			c, _, res := newFakeCoordinator(t, client)
			sess := newSession(t)
			ctx := context.Background()

			_, err := c.Start(ctx, sess, "alpha", nil)
			require.NoError(t, err)
			tt.setup(c, sess)

			_, _, err = c.Complete(ctx, sess, "alpha", "https://app/cb?code=x")
			require.ErrorIs(t, err, auth.ErrUnauthorized)
			assert.Zero(t, res.calls)
			assert.Empty(t, sess.Get(keyState))
			assert.Empty(t, sess.Get(keyProvider))
			assert.Empty(t, sess.Get(KeyUserID))
		})
	}
}

func TestComplete_ResolverFailureIsNotUnauthorized(t *testing.T) {
	client := &fakeClient{id: "alpha", version: auth.Version2,
		ni: &biz.NormalizedIdentity{ProviderID: "alpha", Identity: "a@b.com"}}
	c, _, res := newFakeCoordinator(t, client)
	res.err = errors.New("db down")
	sess := newSession(t)
	ctx := context.Background()

	_, err := c.Start(ctx, sess, "alpha", nil)
	require.NoError(t, err)

	_, _, err = c.Complete(ctx, sess, "alpha", "https://app/cb")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrUnauthorized)
	assert.Empty(t, sess.Get(KeyUserID))
}

func TestComplete_UnknownProviderPropagates(t *testing.T) {
	c, _, _ := newFakeCoordinator(t)
	_, _, err := c.Complete(context.Background(), newSession(t), "nope", "https://app/cb")
	require.ErrorIs(t, err, auth.ErrProviderNotFound)
}
