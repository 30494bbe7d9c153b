package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iskim1407-claw/makeit/internal/domain/oauth"
)

var _ OAuthStateStore = (*MemoryStateStore)(nil)

type memoryStateEntry struct {
	state   oauth.OAuthState
	expires time.Time
}

// MemoryStateStore keeps state nonces in process. It is used when no Redis
// address is configured.
type MemoryStateStore struct {
	mu     sync.Mutex
	now    func() time.Time
	states map[string]memoryStateEntry
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{now: time.Now, states: make(map[string]memoryStateEntry)}
}

func (m *MemoryStateStore) SaveState(_ context.Context, key string, data oauth.OAuthState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, entry := range m.states {
		if now.After(entry.expires) {
			delete(m.states, k)
		}
	}
	m.states[key] = memoryStateEntry{state: data, expires: now.Add(ttl)}
	return nil
}

func (m *MemoryStateStore) ConsumeState(_ context.Context, key string) (*oauth.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	delete(m.states, key)
	if m.now().After(entry.expires) {
		return nil, nil
	}
	state := entry.state
	return &state, nil
}
