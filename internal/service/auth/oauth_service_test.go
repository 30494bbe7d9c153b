package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/config"
	"github.com/iskim1407-claw/makeit/internal/domain"
	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
	"github.com/iskim1407-claw/makeit/internal/jwt"
	"github.com/iskim1407-claw/makeit/internal/repository"
	"github.com/iskim1407-claw/makeit/internal/service/credential"
	"github.com/iskim1407-claw/makeit/internal/telemetry"
)

const redirectURI = "https://makeit.example/oauth/vercel/callback"

func TestOAuthService_StartAuthorization(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()

	out, err := h.service.StartAuthorization(ctx, StartAuthorizationInput{Provider: "vercel", UserID: "user-1", RedirectURI: redirectURI})
	require.NoError(t, err)

	authURL, err := url.Parse(out.AuthorizationURL)
	require.NoError(t, err)
	require.Equal(t, "vercel.com", authURL.Host)
	q := authURL.Query()
	require.Equal(t, "vercel-client", q.Get("client_id"))
	require.Equal(t, redirectURI, q.Get("redirect_uri"))
	require.Equal(t, "user", q.Get("scope"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, out.State, q.Get("state"))

	claims, err := h.codec.Decode(out.State)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, domain.ProviderVercel, claims.Provider)
}

func TestOAuthService_StartAuthorizationErrors(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()

	_, err := h.service.StartAuthorization(ctx, StartAuthorizationInput{Provider: "vercel", RedirectURI: redirectURI})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.service.StartAuthorization(ctx, StartAuthorizationInput{Provider: "github", UserID: "user-1", RedirectURI: redirectURI})
	require.ErrorIs(t, err, domainoauth.ErrProviderNotConfigured)

	_, err = h.service.StartAuthorization(ctx, StartAuthorizationInput{Provider: "gitlab", UserID: "user-1", RedirectURI: redirectURI})
	require.ErrorIs(t, err, domainoauth.ErrUnknownProvider)
}

func TestOAuthService_CompleteAuthorization(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()
	h.providerClient.token = &domainoauth.OAuthTokenResponse{AccessToken: "vercel-token", ExpiresIn: 3600}

	state := h.start(t, "user-1")
	cred, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "code-1", State: state, RedirectURI: redirectURI}, "user-1")
	require.NoError(t, err)
	require.Equal(t, "vercel-token", cred.AccessToken)
	require.Equal(t, "user", cred.Scope)
	require.NotNil(t, cred.ExpiresAt)
	require.True(t, cred.ExpiresAt.Equal(h.now.Add(time.Hour)))

	require.Equal(t, "code-1", h.providerClient.code)
	require.Equal(t, redirectURI, h.providerClient.redirectURI)

	status, err := h.credentials.ConnectionStatus(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, status.Vercel)
}

func TestOAuthService_CompleteAuthorizationLadder(t *testing.T) {
	ctx := context.Background()

	t.Run("provider error", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", ProviderError: "access_denied"}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrProviderDenied)
		require.Equal(t, "vercel_auth_failed", RedirectCode(domain.ProviderVercel, err))
	})

	t.Run("missing parameters", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c"}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrMissingParameters)
		_, err = h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", State: "s"}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrMissingParameters)
	})

	t.Run("invalid state", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c", State: "eyJ1c2VySWQiOiJ1c2VyLTEifQ"}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrInvalidState)
	})

	t.Run("expired state", func(t *testing.T) {
		for _, age := range []time.Duration{10*time.Minute + time.Second, time.Hour, 48 * time.Hour} {
			h := newOAuthTestHarness(t)
			state := h.start(t, "user-1")
			h.now = h.now.Add(age)
			_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c", State: state}, "user-1")
			require.ErrorIs(t, err, domainoauth.ErrStateExpired, age.String())
		}
	})

	t.Run("user mismatch", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		state := h.start(t, "user-1")
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c", State: state}, "user-2")
		require.ErrorIs(t, err, domainoauth.ErrUserMismatch)

		_, err = h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c", State: state}, "")
		require.ErrorIs(t, err, domainoauth.ErrUserMismatch)

		_, err = h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "github", Code: "c", State: state}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrUserMismatch)
	})

	t.Run("replayed state", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		h.providerClient.token = &domainoauth.OAuthTokenResponse{AccessToken: "tok"}
		state := h.start(t, "user-1")
		in := CallbackInput{Provider: "vercel", Code: "c", State: state}
		_, err := h.service.CompleteAuthorization(ctx, in, "user-1")
		require.NoError(t, err)
		_, err = h.service.CompleteAuthorization(ctx, in, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrInvalidState)
	})

	t.Run("not configured", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		state := h.issueState(t, "user-1", domain.ProviderGitHub)
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "github", Code: "c", State: state}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrProviderNotConfigured)
		require.Equal(t, "github_not_configured", RedirectCode(domain.ProviderGitHub, err))
	})

	t.Run("exchange failed", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		state := h.start(t, "user-1")
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c", State: state}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrTokenExchangeFailed)
	})

	t.Run("save failed", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		h.providerClient.token = &domainoauth.OAuthTokenResponse{AccessToken: "tok"}
		h.setCredentials(failingCredentials{})
		state := h.start(t, "user-1")
		_, err := h.service.CompleteAuthorization(ctx, CallbackInput{Provider: "vercel", Code: "c", State: state}, "user-1")
		require.ErrorIs(t, err, domainoauth.ErrTokenSaveFailed)
	})
}

func TestRedirectCode(t *testing.T) {
	cases := map[string]error{
		"vercel_connected":      nil,
		"vercel_auth_failed":    domainoauth.ErrProviderDenied,
		"missing_params":        domainoauth.ErrMissingParameters,
		"state_expired":         domainoauth.ErrStateExpired,
		"invalid_state":         domainoauth.ErrInvalidState,
		"user_mismatch":         domainoauth.ErrUserMismatch,
		"vercel_not_configured": domainoauth.ErrProviderNotConfigured,
		"token_exchange_failed": domainoauth.ErrTokenExchangeFailed,
		"token_save_failed":     domainoauth.ErrTokenSaveFailed,
		"vercel_auth_error":     errors.New("boom"),
		"unknown_provider":      domainoauth.ErrUnknownProvider,
	}
	for want, err := range cases {
		require.Equal(t, want, RedirectCode(domain.ProviderVercel, err))
	}
}

func TestOAuthService_CompleteIdentityLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("github token saved", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		h.identity.session = &domainoauth.IdentitySession{
			AccessToken:          "session",
			UserID:               "user-1",
			Provider:             "github",
			ProviderToken:        "gho_abc",
			ProviderRefreshToken: "ghr_def",
		}
		session, err := h.service.CompleteIdentityLogin(ctx, "code")
		require.NoError(t, err)
		require.Equal(t, "session", session.AccessToken)

		cred, err := h.credentials.Get(ctx, "user-1", domain.ProviderGitHub)
		require.NoError(t, err)
		require.Equal(t, "gho_abc", cred.AccessToken)
		require.Equal(t, "ghr_def", cred.RefreshToken)
		require.Equal(t, "repo", cred.Scope)
	})

	t.Run("other provider ignored", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		h.identity.session = &domainoauth.IdentitySession{AccessToken: "session", UserID: "user-1", Provider: "google", ProviderToken: "ya29"}
		_, err := h.service.CompleteIdentityLogin(ctx, "code")
		require.NoError(t, err)

		_, err = h.credentials.Get(ctx, "user-1", domain.ProviderGitHub)
		require.ErrorIs(t, err, domain.ErrCredentialNotFound)
	})

	t.Run("save failure does not fail login", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		h.setCredentials(failingCredentials{})
		h.identity.session = &domainoauth.IdentitySession{AccessToken: "session", UserID: "user-1", Provider: "github", ProviderToken: "gho"}
		session, err := h.service.CompleteIdentityLogin(ctx, "code")
		require.NoError(t, err)
		require.NotNil(t, session)
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := newOAuthTestHarness(t)
		_, err := h.service.CompleteIdentityLogin(ctx, "code")
		require.ErrorIs(t, err, domainoauth.ErrIdentityExchangeFailed)

		_, err = h.service.CompleteIdentityLogin(ctx, "")
		require.ErrorIs(t, err, domainoauth.ErrMissingParameters)
	})
}

// ---- Test harness and fakes ----

type oauthTestHarness struct {
	service        *oauthService
	codec          *jwt.StateCodec
	stateStore     *repository.MemoryStateStore
	providerClient *fakeProviderClient
	identity       *fakeIdentityClient
	credentials    credential.Service
	now            time.Time
}

func newOAuthTestHarness(t *testing.T) *oauthTestHarness {
	t.Helper()

	h := &oauthTestHarness{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	cfg := config.Config{Vercel: config.ProviderCredentials{ClientID: "vercel-client", ClientSecret: "vercel-secret"}}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h.codec = jwt.NewStateCodec("state-secret-state-secret-state-", 10*time.Minute).WithClock(clock)
	h.stateStore = repository.NewMemoryStateStore()
	h.providerClient = &fakeProviderClient{}
	h.identity = &fakeIdentityClient{}
	h.credentials = credential.NewService(repository.NewMemoryCredentialRepo(node), zap.NewNop())

	svc := NewOAuthService(ProviderRegistry(cfg), h.codec, h.stateStore, h.providerClient, h.identity, h.credentials, telemetry.NewMetrics(), zap.NewNop())
	h.service = svc.(*oauthService)
	h.service.now = clock
	return h
}

func (h *oauthTestHarness) setCredentials(svc credential.Service) {
	h.credentials = svc
	h.service.credentials = svc
}

func (h *oauthTestHarness) start(t *testing.T, userID string) string {
	t.Helper()
	out, err := h.service.StartAuthorization(context.Background(), StartAuthorizationInput{Provider: "vercel", UserID: userID, RedirectURI: redirectURI})
	require.NoError(t, err)
	return out.State
}

// issueState bypasses StartAuthorization so unconfigured providers can be exercised.
func (h *oauthTestHarness) issueState(t *testing.T, userID string, provider domain.Provider) string {
	t.Helper()
	nonce := "nonce-" + string(provider)
	require.NoError(t, h.stateStore.SaveState(context.Background(), nonce, domainoauth.OAuthState{Nonce: nonce, UserID: userID, Provider: provider}, time.Minute))
	state, err := h.codec.Encode(domainoauth.StateClaims{UserID: userID, Provider: provider, Nonce: nonce})
	require.NoError(t, err)
	return state
}

type fakeProviderClient struct {
	token       *domainoauth.OAuthTokenResponse
	code        string
	redirectURI string
}

func (f *fakeProviderClient) ExchangeCode(_ context.Context, _ domainoauth.ProviderConfig, code, redirectURI string) (*domainoauth.OAuthTokenResponse, error) {
	f.code = code
	f.redirectURI = redirectURI
	if f.token == nil {
		return nil, errors.New("token exchange failed: status=400")
	}
	return f.token, nil
}

type fakeIdentityClient struct {
	session *domainoauth.IdentitySession
}

func (f *fakeIdentityClient) ExchangeCodeForSession(context.Context, string) (*domainoauth.IdentitySession, error) {
	if f.session == nil {
		return nil, errors.New("session exchange failed: status=400")
	}
	return f.session, nil
}

type failingCredentials struct {
	credential.Service
}

func (failingCredentials) Save(context.Context, string, domain.Provider, string, credential.SaveOptions) (domain.Credential, error) {
	return domain.Credential{}, errors.New("database unavailable")
}
