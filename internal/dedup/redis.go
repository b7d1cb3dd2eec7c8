package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "adhound:seen:"

// RedisStore shares fingerprints between processes. SetNX makes the
// seen-check and the marking a single round trip.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(source, link string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, source, Fingerprint(link))
}

func (s *RedisStore) Seen(ctx context.Context, source, link string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.key(source, link), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return !set, nil
}

func (s *RedisStore) Forget(ctx context.Context, source, link string) error {
	if err := s.client.Del(ctx, s.key(source, link)).Err(); err != nil {
		return fmt.Errorf("failed to drop fingerprint: %w", err)
	}
	return nil
}
