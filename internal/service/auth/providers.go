package auth

import (
	"github.com/iskim1407-claw/makeit/internal/config"
	"github.com/iskim1407-claw/makeit/internal/domain"
	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
)

// ProviderRegistry returns the OAuth client registration of every provider a
// credential can be connected through. Providers without client credentials
// are still listed so callers can report them as not configured.
func ProviderRegistry(cfg config.Config) map[domain.Provider]domainoauth.ProviderConfig {
	return map[domain.Provider]domainoauth.ProviderConfig{
		domain.ProviderVercel: {
			Provider:     domain.ProviderVercel,
			ClientID:     cfg.Vercel.ClientID,
			ClientSecret: cfg.Vercel.ClientSecret,
			AuthURL:      "https://vercel.com/oauth/authorize",
			TokenURL:     "https://api.vercel.com/v2/oauth/access_token",
			Scope:        "user",
		},
		domain.ProviderGitHub: {
			Provider:     domain.ProviderGitHub,
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			AuthURL:      "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			Scope:        "repo",
		},
	}
}
