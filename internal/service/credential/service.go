package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/domain"
	"github.com/iskim1407-claw/makeit/internal/repository"
)

// Service is the token store consumed by the OAuth flow and deployments.
type Service interface {
	// Get returns domain.ErrCredentialNotFound when the user has not connected provider.
	Get(ctx context.Context, userID string, provider domain.Provider) (domain.Credential, error)
	GetAll(ctx context.Context, userID string) (domain.CredentialSet, error)
	Save(ctx context.Context, userID string, provider domain.Provider, accessToken string, opts SaveOptions) (domain.Credential, error)
	Delete(ctx context.Context, userID string, provider domain.Provider) error
	ConnectionStatus(ctx context.Context, userID string) (domain.ConnectionStatus, error)
}

// SaveOptions carries the optional parts of a credential.
type SaveOptions struct {
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
}

type service struct {
	repo   repository.CredentialRepository
	logger *zap.Logger
}

// NewService wires the token store service.
func NewService(repo repository.CredentialRepository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (s *service) Get(ctx context.Context, userID string, provider domain.Provider) (domain.Credential, error) {
	if err := validateKey(userID, provider); err != nil {
		return domain.Credential{}, err
	}
	cred, err := s.repo.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return domain.Credential{}, err
		}
		return domain.Credential{}, fmt.Errorf("load %s credential: %w", provider, err)
	}
	return cred, nil
}

func (s *service) GetAll(ctx context.Context, userID string) (domain.CredentialSet, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.CredentialSet{}, domain.ErrUnauthorized
	}
	creds, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return domain.CredentialSet{}, fmt.Errorf("list credentials: %w", err)
	}

	var set domain.CredentialSet
	for i := range creds {
		cred := creds[i]
		switch cred.Provider {
		case domain.ProviderGitHub:
			set.GitHub = &cred
		case domain.ProviderVercel:
			set.Vercel = &cred
		}
	}
	return set, nil
}

func (s *service) Save(ctx context.Context, userID string, provider domain.Provider, accessToken string, opts SaveOptions) (domain.Credential, error) {
	if err := validateKey(userID, provider); err != nil {
		return domain.Credential{}, err
	}
	if strings.TrimSpace(accessToken) == "" {
		return domain.Credential{}, fmt.Errorf("%w: access token required", domain.ErrInvalidRequest)
	}

	saved, err := s.repo.Upsert(ctx, domain.Credential{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  accessToken,
		RefreshToken: opts.RefreshToken,
		ExpiresAt:    opts.ExpiresAt,
		Scope:        opts.Scope,
	})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("save %s credential: %w", provider, err)
	}

	s.log().Info("credential saved",
		zap.String("user_id", userID),
		zap.String("provider", string(provider)),
		zap.Bool("has_refresh_token", opts.RefreshToken != ""),
	)
	return saved, nil
}

func (s *service) Delete(ctx context.Context, userID string, provider domain.Provider) error {
	if err := validateKey(userID, provider); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, provider); err != nil {
		return fmt.Errorf("delete %s credential: %w", provider, err)
	}
	s.log().Info("credential deleted", zap.String("user_id", userID), zap.String("provider", string(provider)))
	return nil
}

func (s *service) ConnectionStatus(ctx context.Context, userID string) (domain.ConnectionStatus, error) {
	set, err := s.GetAll(ctx, userID)
	if err != nil {
		return domain.ConnectionStatus{}, err
	}
	return domain.ConnectionStatus{GitHub: set.GitHub != nil, Vercel: set.Vercel != nil}, nil
}

func (s *service) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func validateKey(userID string, provider domain.Provider) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrUnauthorized
	}
	if _, ok := domain.ParseProvider(string(provider)); !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidRequest, provider)
	}
	return nil
}
