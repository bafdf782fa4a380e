package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/tapboard/internal/config"
	"github.com/tapboard/internal/domain"
)

const boardKey = "leaderboard:tapper:realtime"

// Board mirrors the durable leaderboard in a Redis sorted set for cheap rank
// lookups and websocket fanout. PostgreSQL stays authoritative; the rebuild
// worker repairs drift.
type Board struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBoard connects to Redis and verifies the connection.
func NewBoard(cfg *config.RedisConfig, logger *slog.Logger) (*Board, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Board{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *Board) Close() error {
	return b.client.Close()
}

// Client returns the underlying Redis client
func (b *Board) Client() *redis.Client {
	return b.client
}

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// SetScore sets a user's score on the realtime board.
func (b *Board) SetScore(ctx context.Context, userID, score int64) error {
	err := b.client.ZAdd(ctx, boardKey, redis.Z{
		Score:  float64(score),
		Member: member(userID),
	}).Err()
	if err != nil {
		return fmt.Errorf("setting score: %w", err)
	}
	return nil
}

// PlayerRank returns a user's rank and score from the realtime board.
func (b *Board) PlayerRank(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	pipe := b.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, boardKey, member(userID))
	scoreCmd := pipe.ZScore(ctx, boardKey, member(userID))
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.LeaderboardEntry{
		Rank:   rank + 1, // Convert 0-indexed to 1-indexed
		UserID: userID,
		Score:  int64(score),
	}, nil
}

// Count returns the number of users on the realtime board.
func (b *Board) Count(ctx context.Context) (int64, error) {
	count, err := b.client.ZCard(ctx, boardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// BatchSetScores sets multiple scores using pipelining.
func (b *Board) BatchSetScores(ctx context.Context, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := b.client.Pipeline()
	for _, entry := range entries {
		pipe.ZAdd(ctx, boardKey, redis.Z{
			Score:  float64(entry.Score),
			Member: member(entry.UserID),
		})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// Clear drops the realtime board so a rebuild can repopulate it from the
// durable store.
func (b *Board) Clear(ctx context.Context) error {
	if err := b.client.Del(ctx, boardKey).Err(); err != nil {
		return fmt.Errorf("clearing board: %w", err)
	}
	return nil
}
