package oauth

import (
	"time"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

// ProviderConfig stores the OAuth client registration for an external provider.
type ProviderConfig struct {
	Provider     domain.Provider
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scope        string
}

// StateClaims is the payload carried through the authorization redirect.
type StateClaims struct {
	UserID   string
	Provider domain.Provider
	Nonce    string
	IssuedAt time.Time
}

// OAuthState is the server side record of an issued state nonce.
type OAuthState struct {
	Nonce     string
	UserID    string
	Provider  domain.Provider
	CreatedAt time.Time
}

// OAuthTokenResponse models the response from a provider token endpoint.
type OAuthTokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	Scope        string
}

// IdentitySession is the result of exchanging a sign-in code with the
// identity provider. ProviderToken is set when the user signed in through a
// federated provider that hands its own token back.
type IdentitySession struct {
	AccessToken          string
	RefreshToken         string
	ExpiresIn            int64
	UserID               string
	Email                string
	Provider             string
	ProviderToken        string
	ProviderRefreshToken string
}
