package domain

import "time"

// UpdateMode controls what an upsert does when the user already has a row.
type UpdateMode string

const (
	// UpdateModeReplace is last-write-wins: the synced score overwrites the
	// stored one unconditionally. This matches the behavior the game shipped
	// with.
	UpdateModeReplace UpdateMode = "replace"

	// UpdateModeBest keeps the maximum ever achieved, so a shorter later
	// session can never regress a player's rank.
	UpdateModeBest UpdateMode = "best"
)

// LeaderboardEntry is a single ranked row. At most one entry exists per user;
// DisplayName is the last one seen on an accepted submission.
type LeaderboardEntry struct {
	Rank        int64  `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int64  `json:"score"`
}

// CheatRecord tracks flagged submissions per user. Created on the first flag,
// incremented thereafter, never deleted.
type CheatRecord struct {
	UserID          int64     `json:"user_id"`
	FlagCount       int       `json:"flag_count"`
	LastFlagReason  string    `json:"last_flag_reason"`
	SuspiciousCount int       `json:"suspicious_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Outcome is the service's answer to a submission event: the verdict, the text
// the gateway should deliver, and on accept the refreshed top entries.
type Outcome struct {
	Verdict Verdict            `json:"verdict"`
	Reply   string             `json:"reply"`
	Entries []LeaderboardEntry `json:"entries,omitempty"`
}
