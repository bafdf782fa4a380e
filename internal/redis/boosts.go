package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tapboard/internal/domain"
)

// Boost counters live in Redis as a simple per-user balance. They are an
// auxiliary feature layered on the same submission transport; the
// leaderboard tables never see them.

// useBoostScript decrements the balance only when it is positive, so the
// balance can never go negative under concurrent use.
var useBoostScript = redis.NewScript(`
	local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
	if balance <= 0 then
		return -1
	end
	return redis.call('DECR', KEYS[1])
`)

func boostsKey(userID int64) string {
	return fmt.Sprintf("player:%d:boosts", userID)
}

// BoostBalance returns the user's current boost balance.
func (b *Board) BoostBalance(ctx context.Context, userID int64) (int64, error) {
	val, err := b.client.Get(ctx, boostsKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting boost balance: %w", err)
	}
	return val, nil
}

// GrantBoosts credits boosts to the user, for referral rewards.
func (b *Board) GrantBoosts(ctx context.Context, userID, n int64) (int64, error) {
	balance, err := b.client.IncrBy(ctx, boostsKey(userID), n).Result()
	if err != nil {
		return 0, fmt.Errorf("granting boosts: %w", err)
	}
	return balance, nil
}

// UseBoost consumes one boost and returns the remaining balance. An empty
// balance returns domain.ErrNoBoosts.
func (b *Board) UseBoost(ctx context.Context, userID int64) (int64, error) {
	remaining, err := useBoostScript.Run(ctx, b.client, []string{boostsKey(userID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("using boost: %w", err)
	}
	if remaining < 0 {
		return 0, domain.ErrNoBoosts
	}
	return remaining, nil
}
