package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cooldown state in Redis so that multiple service instances
// share one view of per-user submission times. Keys expire shortly after the
// cooldown window passes, so the store cleans up after itself.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a shared cooldown store. The TTL on each entry is the
// cooldown window with a small slack; an expired key reads as "no prior
// submission", which is exactly what an elapsed cooldown means.
func NewRedisStore(client *redis.Client, cooldown time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    cooldown + time.Second,
	}
}

func (s *RedisStore) key(userID int64) string {
	return fmt.Sprintf("ratelimit:user:%d", userID)
}

// LastAccepted returns the stored last-accepted time for the user.
func (s *RedisStore) LastAccepted(ctx context.Context, userID int64) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading rate limit state: %w", err)
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing rate limit state: %w", err)
	}
	return time.UnixMilli(millis), true, nil
}

// MarkAccepted records an accepted submission time for the user.
func (s *RedisStore) MarkAccepted(ctx context.Context, userID int64, at time.Time) error {
	err := s.client.Set(ctx, s.key(userID), strconv.FormatInt(at.UnixMilli(), 10), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("writing rate limit state: %w", err)
	}
	return nil
}
