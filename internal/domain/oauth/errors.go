package oauth

import "errors"

var (
	// ErrUnknownProvider signals a provider name outside the registry.
	ErrUnknownProvider = errors.New("oauth: unknown provider")
	// ErrProviderNotConfigured signals missing client id or secret for the provider.
	ErrProviderNotConfigured = errors.New("oauth: provider not configured")
	// ErrProviderDenied indicates the provider redirected back with an error.
	ErrProviderDenied = errors.New("oauth: provider returned error")
	// ErrMissingParameters indicates the callback lacked code or state.
	ErrMissingParameters = errors.New("oauth: missing parameters")
	// ErrInvalidState indicates the state could not be decoded, verified or was already used.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrStateExpired indicates the state was presented after its lifetime.
	ErrStateExpired = errors.New("oauth: state expired")
	// ErrUserMismatch indicates the state belongs to another (or no) user.
	ErrUserMismatch = errors.New("oauth: user mismatch")
	// ErrTokenExchangeFailed wraps failures of the code-for-token exchange.
	ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")
	// ErrTokenSaveFailed wraps failures persisting the exchanged credential.
	ErrTokenSaveFailed = errors.New("oauth: token save failed")
	// ErrIdentityExchangeFailed wraps failures of the identity provider session exchange.
	ErrIdentityExchangeFailed = errors.New("oauth: identity exchange failed")
)
