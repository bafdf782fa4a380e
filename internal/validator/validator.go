// Package validator decides whether a client-submitted score may be committed
// to the leaderboard. Every rejection is an ordinary verdict; nothing here
// panics or returns an error for bad client input.
package validator

import (
	"context"
	"time"

	"github.com/tapboard/internal/domain"
)

// Defaults for the validation gate. MaxScore is the highest total a session
// can plausibly reach before the anti-cheat rejects it outright.
const (
	DefaultMaxScore = int64(10_000_000)
	DefaultCooldown = 5 * time.Second
)

// RateLimitStore tracks the last accepted submission time per user. It only
// throttles, it never authorizes, so implementations may lose state on
// restart. The memory-backed store serves single instances; the Redis-backed
// one serves horizontally scaled deployments.
type RateLimitStore interface {
	// LastAccepted returns the time of the user's last accepted submission
	// and whether one is known.
	LastAccepted(ctx context.Context, userID int64) (time.Time, bool, error)
	// MarkAccepted records an accepted submission at the given time.
	MarkAccepted(ctx context.Context, userID int64, at time.Time) error
}

// Result carries the verdict and, on accept, the parsed score.
type Result struct {
	Verdict domain.Verdict
	Score   int64
	Payload *domain.GamePayload
}

// Validator applies the submission rules in a fixed order: malformed, flagged,
// out of range, rate limited, accept. First match wins.
type Validator struct {
	maxScore int64
	cooldown time.Duration
	limits   RateLimitStore
}

// New creates a Validator. Zero maxScore or cooldown fall back to the
// defaults; a nil limits store disables the cooldown check entirely.
func New(maxScore int64, cooldown time.Duration, limits RateLimitStore) *Validator {
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Validator{
		maxScore: maxScore,
		cooldown: cooldown,
		limits:   limits,
	}
}

// ValidateEvent parses the raw payload and validates it. This is the whole
// gate for callers holding an unparsed gateway event.
func (v *Validator) ValidateEvent(ctx context.Context, event domain.SubmissionEvent) Result {
	payload, err := domain.ParsePayload(event.RawPayload)
	if err != nil {
		return Result{Verdict: domain.VerdictRejectMalformed}
	}
	return v.Validate(ctx, event.UserID, payload, event.ReceivedAt)
}

// Validate applies the rules to an already-parsed payload. The flagged check
// runs before the range and cooldown checks: a session the client-side
// anti-cheat already condemned is rejected no matter what score it carries,
// and it still lands in the cheat bookkeeping even inside the cooldown
// window.
func (v *Validator) Validate(ctx context.Context, userID int64, payload *domain.GamePayload, now time.Time) Result {
	if payload == nil {
		return Result{Verdict: domain.VerdictRejectMalformed}
	}

	if payload.Flagged {
		return Result{Verdict: domain.VerdictRejectFlagged, Payload: payload}
	}

	if payload.Score == nil {
		return Result{Verdict: domain.VerdictRejectMalformed, Payload: payload}
	}
	score, err := payload.Score.Int64()
	if err != nil {
		// Present but not an integer.
		return Result{Verdict: domain.VerdictRejectOutOfRange, Payload: payload}
	}
	if score < 0 || score > v.maxScore {
		return Result{Verdict: domain.VerdictRejectOutOfRange, Payload: payload}
	}

	if v.limits != nil {
		last, ok, err := v.limits.LastAccepted(ctx, userID)
		// A limiter failure fails open: the cooldown throttles, it does not
		// authorize.
		if err == nil && ok && now.Sub(last) < v.cooldown {
			return Result{Verdict: domain.VerdictRejectRateLimited, Payload: payload}
		}
	}

	return Result{Verdict: domain.VerdictAccept, Score: score, Payload: payload}
}

// Cooldown returns the configured cooldown window.
func (v *Validator) Cooldown() time.Duration {
	return v.cooldown
}
