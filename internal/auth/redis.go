package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked:"

// RedisRevocationList implements RevocationList on Redis. Entries carry a
// TTL equal to the token's remaining natural lifetime, so the set prunes
// itself exactly when the token's own signature would expire anyway.
type RedisRevocationList struct {
	client *redis.Client
}

var _ RevocationList = (*RedisRevocationList)(nil)

func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

// Revoke inserts the token into the set. Re-revoking refreshes the TTL,
// which keeps the call idempotent.
func (l *RedisRevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return l.client.Set(ctx, revokedKeyPrefix+token, 1, ttl).Err()
}

// IsRevoked reports membership. Consulted before cryptographic verification.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := l.client.Exists(ctx, revokedKeyPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
