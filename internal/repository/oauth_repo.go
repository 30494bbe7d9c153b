package repository

import (
	"context"
	"time"

	"github.com/iskim1407-claw/makeit/internal/domain/oauth"
)

// OAuthStateStore persists short-lived authorization state nonces.
type OAuthStateStore interface {
	SaveState(ctx context.Context, key string, data oauth.OAuthState, ttl time.Duration) error
	// ConsumeState atomically loads and removes the state. It returns nil, nil
	// when the key is unknown, expired or already consumed.
	ConsumeState(ctx context.Context, key string) (*oauth.OAuthState, error)
}
