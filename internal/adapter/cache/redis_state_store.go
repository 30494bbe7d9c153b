package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iskim1407-claw/makeit/internal/domain/oauth"
	"github.com/iskim1407-claw/makeit/internal/repository"
)

// DefaultStatePrefix namespaces state nonces in a shared Redis.
const DefaultStatePrefix = "makeit:oauth_state:"

// RedisStateStore keeps pending OAuth state nonces in Redis until they are
// redeemed or expire.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

var _ repository.OAuthStateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store. An empty prefix
// falls back to DefaultStatePrefix.
func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultStatePrefix
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

// SaveState records the nonce with a TTL. A non-positive TTL is rejected
// since Redis would keep the key forever.
func (s *RedisStateStore) SaveState(ctx context.Context, nonce string, state oauth.OAuthState, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("save state: ttl must be positive, got %s", ttl)
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(nonce), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// ConsumeState reads and deletes the nonce atomically with GETDEL, so two
// callbacks racing on the same state cannot both succeed. A missing or
// expired nonce yields (nil, nil).
func (s *RedisStateStore) ConsumeState(ctx context.Context, nonce string) (*oauth.OAuthState, error) {
	payload, err := s.client.GetDel(ctx, s.key(nonce)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("consume state: %w", err)
	}

	var state oauth.OAuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) key(nonce string) string {
	return s.prefix + nonce
}
