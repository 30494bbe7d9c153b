package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/adapter/identity"
	oauthadapter "github.com/iskim1407-claw/makeit/internal/adapter/oauth"
	"github.com/iskim1407-claw/makeit/internal/domain"
	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
	"github.com/iskim1407-claw/makeit/internal/jwt"
	"github.com/iskim1407-claw/makeit/internal/repository"
	"github.com/iskim1407-claw/makeit/internal/service/credential"
	"github.com/iskim1407-claw/makeit/internal/telemetry"
)

var tracer = otel.Tracer("github.com/iskim1407-claw/makeit/internal/service/auth")

// OAuthService connects third-party accounts to a signed-in user.
type OAuthService interface {
	StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error)
	CompleteAuthorization(ctx context.Context, in CallbackInput, userID string) (domain.Credential, error)
	CompleteIdentityLogin(ctx context.Context, code string) (*domainoauth.IdentitySession, error)
}

// StartAuthorizationInput contains parameters for constructing authorization URLs.
type StartAuthorizationInput struct {
	Provider    string
	UserID      string
	RedirectURI string
}

// StartAuthorizationOutput returns the provider authorization URL.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures the callback query parameters.
type CallbackInput struct {
	Provider      string
	Code          string
	State         string
	ProviderError string
	RedirectURI   string
}

type oauthService struct {
	providers      map[domain.Provider]domainoauth.ProviderConfig
	codec          *jwt.StateCodec
	stateStore     repository.OAuthStateStore
	providerClient oauthadapter.ProviderClient
	identity       identity.Client
	credentials    credential.Service
	metrics        *telemetry.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewOAuthService wires the OAuth service implementation.
func NewOAuthService(
	providers map[domain.Provider]domainoauth.ProviderConfig,
	codec *jwt.StateCodec,
	stateStore repository.OAuthStateStore,
	providerClient oauthadapter.ProviderClient,
	identityClient identity.Client,
	credentials credential.Service,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) OAuthService {
	return &oauthService{
		providers:      providers,
		codec:          codec,
		stateStore:     stateStore,
		providerClient: providerClient,
		identity:       identityClient,
		credentials:    credentials,
		metrics:        metrics,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *oauthService) StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error) {
	cfg, err := s.lookupProvider(in.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, domainoauth.ErrProviderNotConfigured
	}

	authURL, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}

	now := s.now().UTC()
	nonce := uuid.NewString()
	if err := s.stateStore.SaveState(ctx, nonce, domainoauth.OAuthState{
		Nonce:     nonce,
		UserID:    in.UserID,
		Provider:  cfg.Provider,
		CreatedAt: now,
	}, s.codec.TTL()); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	state, err := s.codec.Encode(domainoauth.StateClaims{
		UserID:   in.UserID,
		Provider: cfg.Provider,
		Nonce:    nonce,
		IssuedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	params := authURL.Query()
	params.Set("client_id", cfg.ClientID)
	params.Set("redirect_uri", in.RedirectURI)
	params.Set("scope", cfg.Scope)
	params.Set("response_type", "code")
	params.Set("state", state)
	authURL.RawQuery = params.Encode()

	return &StartAuthorizationOutput{AuthorizationURL: authURL.String(), State: state}, nil
}

func (s *oauthService) CompleteAuthorization(ctx context.Context, in CallbackInput, userID string) (cred domain.Credential, err error) {
	ctx, span := tracer.Start(ctx, "oauth.complete_authorization")
	span.SetAttributes(attribute.String("oauth.provider", in.Provider))
	defer func() {
		if provider, ok := domain.ParseProvider(in.Provider); ok {
			s.metrics.OAuthCallback(string(provider), RedirectCode(provider, err))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cfg, err := s.lookupProvider(in.Provider)
	if err != nil {
		return domain.Credential{}, err
	}
	if strings.TrimSpace(in.ProviderError) != "" {
		return domain.Credential{}, fmt.Errorf("%w: %s", domainoauth.ErrProviderDenied, in.ProviderError)
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return domain.Credential{}, domainoauth.ErrMissingParameters
	}

	claims, err := s.codec.Decode(in.State)
	if err != nil {
		return domain.Credential{}, err
	}
	if userID == "" || claims.UserID != userID || claims.Provider != cfg.Provider {
		return domain.Credential{}, domainoauth.ErrUserMismatch
	}

	stored, err := s.stateStore.ConsumeState(ctx, claims.Nonce)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("consume state: %w", err)
	}
	if stored == nil || stored.UserID != userID {
		return domain.Credential{}, domainoauth.ErrInvalidState
	}

	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return domain.Credential{}, domainoauth.ErrProviderNotConfigured
	}

	token, err := s.providerClient.ExchangeCode(ctx, cfg, in.Code, in.RedirectURI)
	if err != nil {
		s.log().Warn("token exchange failed", zap.String("provider", string(cfg.Provider)), zap.String("user_id", userID), zap.Error(err))
		return domain.Credential{}, fmt.Errorf("%w: %v", domainoauth.ErrTokenExchangeFailed, err)
	}

	opts := credential.SaveOptions{RefreshToken: token.RefreshToken, Scope: token.Scope}
	if opts.Scope == "" {
		opts.Scope = cfg.Scope
	}
	if token.ExpiresIn > 0 {
		expiresAt := s.now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
		opts.ExpiresAt = &expiresAt
	}

	cred, err = s.credentials.Save(ctx, userID, cfg.Provider, token.AccessToken, opts)
	if err != nil {
		s.log().Error("token save failed", zap.String("provider", string(cfg.Provider)), zap.String("user_id", userID), zap.Error(err))
		return domain.Credential{}, fmt.Errorf("%w: %v", domainoauth.ErrTokenSaveFailed, err)
	}
	return cred, nil
}

func (s *oauthService) CompleteIdentityLogin(ctx context.Context, code string) (*domainoauth.IdentitySession, error) {
	ctx, span := tracer.Start(ctx, "oauth.complete_identity_login")
	defer span.End()

	if strings.TrimSpace(code) == "" {
		return nil, domainoauth.ErrMissingParameters
	}

	session, err := s.identity.ExchangeCodeForSession(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", domainoauth.ErrIdentityExchangeFailed, err)
	}

	if session.ProviderToken != "" && strings.EqualFold(session.Provider, string(domain.ProviderGitHub)) {
		_, err := s.credentials.Save(ctx, session.UserID, domain.ProviderGitHub, session.ProviderToken, credential.SaveOptions{
			RefreshToken: session.ProviderRefreshToken,
			Scope:        "repo",
		})
		if err != nil {
			s.log().Error("github token save failed", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	return session, nil
}

func (s *oauthService) lookupProvider(name string) (domainoauth.ProviderConfig, error) {
	provider, ok := domain.ParseProvider(name)
	if !ok {
		return domainoauth.ProviderConfig{}, domainoauth.ErrUnknownProvider
	}
	cfg, ok := s.providers[provider]
	if !ok {
		return domainoauth.ProviderConfig{}, domainoauth.ErrUnknownProvider
	}
	return cfg, nil
}

func (s *oauthService) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.L()
}

// RedirectCode maps the outcome of CompleteAuthorization to the query code
// reported to the dashboard. A nil error yields the success code.
func RedirectCode(provider domain.Provider, err error) string {
	switch {
	case err == nil:
		return string(provider) + "_connected"
	case errors.Is(err, domainoauth.ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, domainoauth.ErrProviderDenied):
		return string(provider) + "_auth_failed"
	case errors.Is(err, domainoauth.ErrMissingParameters):
		return "missing_params"
	case errors.Is(err, domainoauth.ErrStateExpired):
		return "state_expired"
	case errors.Is(err, domainoauth.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domainoauth.ErrUserMismatch):
		return "user_mismatch"
	case errors.Is(err, domainoauth.ErrProviderNotConfigured):
		return string(provider) + "_not_configured"
	case errors.Is(err, domainoauth.ErrTokenExchangeFailed):
		return "token_exchange_failed"
	case errors.Is(err, domainoauth.ErrTokenSaveFailed):
		return "token_save_failed"
	default:
		return string(provider) + "_auth_error"
	}
}
