package domain

import (
	"encoding/json"
	"time"
)

// Payload actions. Anything other than a plain score sync is routed to the
// boost counter store instead of the leaderboard.
const (
	ActionSync      = "sync"
	ActionGetBoosts = "get_boosts"
	ActionUseBoost  = "use_boost"
)

// SubmissionEvent is what the messaging gateway delivers: a user identity plus
// the opaque payload string the game client produced. ReceivedAt is stamped by
// whichever transport received the event, not by the client.
type SubmissionEvent struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	RawPayload  string    `json:"payload"`
	ReceivedAt  time.Time `json:"-"`
}

// GamePayload is the strict schema for the client payload. The score is kept
// as a json.Number so that "present but not an integer" can be told apart from
// "missing" during validation.
type GamePayload struct {
	Score           *json.Number `json:"score"`
	Flagged         bool         `json:"flagged"`
	SuspiciousCount int          `json:"suspiciousCount"`
	Action          string       `json:"action"`
}

// ParsePayload decodes the raw payload string. A decode failure is reported as
// ErrMalformedPayload; callers translate it into VerdictRejectMalformed rather
// than propagating it.
func ParsePayload(raw string) (*GamePayload, error) {
	var p GamePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, ErrMalformedPayload
	}
	if p.Action == "" {
		p.Action = ActionSync
	}
	return &p, nil
}
