// AngelaMos | 2026
// revocation.go

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations is a deny-list of access token ids. Entries only need to live
// until the token itself would have expired.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type RedisRevocations struct {
	client *redis.Client
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func (r *RedisRevocations) Revoke(
	ctx context.Context,
	tokenID string,
	ttl time.Duration,
) error {
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, "blacklist:"+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (r *RedisRevocations) IsRevoked(
	ctx context.Context,
	tokenID string,
) (bool, error) {
	exists, err := r.client.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists > 0, nil
}

type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{revoked: make(map[string]time.Time)}
}

func (m *MemoryRevocations) Revoke(
	_ context.Context,
	tokenID string,
	ttl time.Duration,
) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, id)
		}
	}
	m.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(
	_ context.Context,
	tokenID string,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	return ok && time.Now().Before(exp), nil
}
