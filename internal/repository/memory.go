package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

var _ CredentialRepository = (*MemoryCredentialRepo)(nil)

type credentialKey struct {
	userID   string
	provider domain.Provider
}

// MemoryCredentialRepo is a thread-safe in-memory CredentialRepository for
// tests and local development. Callers always receive copies.
type MemoryCredentialRepo struct {
	mu    sync.RWMutex
	node  *snowflake.Node
	now   func() time.Time
	creds map[credentialKey]domain.Credential
}

// NewMemoryCredentialRepo creates an empty store.
func NewMemoryCredentialRepo(node *snowflake.Node) *MemoryCredentialRepo {
	return &MemoryCredentialRepo{
		node:  node,
		now:   time.Now,
		creds: make(map[credentialKey]domain.Credential),
	}
}

func (m *MemoryCredentialRepo) Get(_ context.Context, userID string, provider domain.Provider) (domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.creds[credentialKey{userID: userID, provider: provider}]
	if !ok {
		return domain.Credential{}, domain.ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

func (m *MemoryCredentialRepo) ListByUser(_ context.Context, userID string) ([]domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var creds []domain.Credential
	for key, cred := range m.creds {
		if key.userID == userID {
			creds = append(creds, copyCredential(cred))
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Provider < creds[j].Provider })
	return creds, nil
}

func (m *MemoryCredentialRepo) Upsert(_ context.Context, cred domain.Credential) (domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := credentialKey{userID: cred.UserID, provider: cred.Provider}
	now := m.now().UTC()
	stored := copyCredential(cred)
	if existing, ok := m.creds[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = m.node.Generate().Int64()
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.creds[key] = stored
	return copyCredential(stored), nil
}

func (m *MemoryCredentialRepo) Delete(_ context.Context, userID string, provider domain.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.creds, credentialKey{userID: userID, provider: provider})
	return nil
}

// Len returns the number of stored credentials.
func (m *MemoryCredentialRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds)
}

func copyCredential(c domain.Credential) domain.Credential {
	cp := c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	return cp
}
