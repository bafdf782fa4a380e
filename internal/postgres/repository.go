package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tapboard/internal/config"
	"github.com/tapboard/internal/domain"
)

// Repository provides PostgreSQL-based data access. It is the system of
// record: an upsert either fully applies or an error is returned, and the
// repository itself never retries.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id BIGINT PRIMARY KEY,
			display_name TEXT NOT NULL,
			score BIGINT NOT NULL CHECK (score >= 0),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cheaters (
			user_id BIGINT PRIMARY KEY,
			flag_count INT NOT NULL DEFAULT 0,
			last_flag_reason TEXT NOT NULL DEFAULT '',
			suspicious_count INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC, user_id ASC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertScore inserts or overwrites a user's leaderboard row. Last write
// wins; the display name is refreshed on every accepted submission.
func (r *Repository) UpsertScore(ctx context.Context, userID int64, displayName string, score int64) error {
	query := `
		INSERT INTO leaderboard (user_id, display_name, score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET display_name = $2, score = $3, updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query, userID, displayName, score, time.Now())
	if err != nil {
		return fmt.Errorf("upserting score: %w", err)
	}
	return nil
}

// UpsertScoreBest inserts or updates a user's row keeping the maximum score
// ever recorded. The display name still refreshes on every submission.
func (r *Repository) UpsertScoreBest(ctx context.Context, userID int64, displayName string, score int64) error {
	query := `
		INSERT INTO leaderboard (user_id, display_name, score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET
			display_name = $2,
			score = GREATEST(leaderboard.score, $3),
			updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query, userID, displayName, score, time.Now())
	if err != nil {
		return fmt.Errorf("upserting best score: %w", err)
	}
	return nil
}

// TopN retrieves the top n entries, highest score first. Ties break on
// user_id ascending so rankings are deterministic.
func (r *Repository) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT user_id, display_name, score,
			   ROW_NUMBER() OVER (ORDER BY score DESC, user_id ASC) AS rank
		FROM leaderboard
		ORDER BY score DESC, user_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("getting top entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.Score, &entry.Rank)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetPlayer retrieves a user's entry with their current rank.
func (r *Repository) GetPlayer(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	query := `
		WITH ranked AS (
			SELECT user_id, display_name, score,
				   ROW_NUMBER() OVER (ORDER BY score DESC, user_id ASC) AS rank
			FROM leaderboard
		)
		SELECT user_id, display_name, score, rank
		FROM ranked
		WHERE user_id = $1
	`
	var entry domain.LeaderboardEntry
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&entry.UserID,
		&entry.DisplayName,
		&entry.Score,
		&entry.Rank,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &entry, nil
}

// RecordFlag creates or increments the user's cheat record. Called once per
// flagged submission, before the submission is rejected back to the gateway.
func (r *Repository) RecordFlag(ctx context.Context, userID int64, reason string, suspiciousCount int) error {
	query := `
		INSERT INTO cheaters (user_id, flag_count, last_flag_reason, suspicious_count, updated_at)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET
			flag_count = cheaters.flag_count + 1,
			last_flag_reason = $2,
			suspicious_count = $3,
			updated_at = $4
	`
	_, err := r.pool.Exec(ctx, query, userID, reason, suspiciousCount, time.Now())
	if err != nil {
		return fmt.Errorf("recording flag: %w", err)
	}
	return nil
}

// GetCheatRecord retrieves a user's cheat record.
func (r *Repository) GetCheatRecord(ctx context.Context, userID int64) (*domain.CheatRecord, error) {
	query := `
		SELECT user_id, flag_count, last_flag_reason, suspicious_count, updated_at
		FROM cheaters
		WHERE user_id = $1
	`
	var record domain.CheatRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&record.UserID,
		&record.FlagCount,
		&record.LastFlagReason,
		&record.SuspiciousCount,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoCheatRecord
		}
		return nil, fmt.Errorf("getting cheat record: %w", err)
	}
	return &record, nil
}

// PlayerCount returns the total number of users on the leaderboard.
func (r *Repository) PlayerCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leaderboard`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("getting player count: %w", err)
	}
	return count, nil
}

// AllScores retrieves every leaderboard row, used by the rebuild worker to
// repopulate the realtime board.
func (r *Repository) AllScores(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	query := `SELECT user_id, display_name, score FROM leaderboard`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting all scores: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.Score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
