package domain

import (
	"strings"
	"time"
)

// Provider names a third-party service whose access token we hold.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderVercel Provider = "vercel"
)

// Providers lists every provider a credential can be stored for.
var Providers = []Provider{ProviderGitHub, ProviderVercel}

// ParseProvider normalizes name and reports whether it is a known provider.
func ParseProvider(name string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case ProviderGitHub, ProviderVercel:
		return p, true
	default:
		return "", false
	}
}

// DisplayName returns the human facing provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGitHub:
		return "GitHub"
	case ProviderVercel:
		return "Vercel"
	default:
		return string(p)
	}
}

// Credential is the stored OAuth grant of one user for one provider.
// At most one exists per (UserID, Provider).
type Credential struct {
	ID           int64
	UserID       string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the credential carries an expiry that has passed.
// Credentials without an expiry never expire.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// CredentialSet groups the credentials of a single user.
type CredentialSet struct {
	GitHub *Credential
	Vercel *Credential
}

// ConnectionStatus reports which providers a user has connected.
type ConnectionStatus struct {
	GitHub bool `json:"github"`
	Vercel bool `json:"vercel"`
}

// CanDeploy is true only when every provider needed by a deployment is connected.
func (s ConnectionStatus) CanDeploy() bool {
	return s.GitHub && s.Vercel
}
