package repository

import (
	"context"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

// CredentialRepository persists provider credentials keyed by (user, provider).
type CredentialRepository interface {
	// Get returns domain.ErrCredentialNotFound when no credential exists.
	Get(ctx context.Context, userID string, provider domain.Provider) (domain.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Credential, error)
	// Upsert inserts or replaces the credential for its (UserID, Provider) pair.
	Upsert(ctx context.Context, cred domain.Credential) (domain.Credential, error)
	// Delete removes the credential; deleting a missing credential is not an error.
	Delete(ctx context.Context, userID string, provider domain.Provider) error
}
