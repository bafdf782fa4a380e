package validator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tapboard/internal/domain"
	"github.com/tapboard/internal/ratelimit"
)

func num(s string) *json.Number {
	n := json.Number(s)
	return &n
}

func scorePayload(s string) *domain.GamePayload {
	return &domain.GamePayload{Score: num(s), Action: domain.ActionSync}
}

func TestValidateRules(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name    string
		payload *domain.GamePayload
		want    domain.Verdict
	}{
		{name: "nil payload", payload: nil, want: domain.VerdictRejectMalformed},
		{name: "missing score", payload: &domain.GamePayload{}, want: domain.VerdictRejectMalformed},
		{name: "zero score", payload: scorePayload("0"), want: domain.VerdictAccept},
		{name: "typical score", payload: scorePayload("500"), want: domain.VerdictAccept},
		{name: "max score boundary", payload: scorePayload("10000000"), want: domain.VerdictAccept},
		{name: "just above max", payload: scorePayload("10000001"), want: domain.VerdictRejectOutOfRange},
		{name: "absurd score", payload: scorePayload("50000001"), want: domain.VerdictRejectOutOfRange},
		{name: "negative score", payload: scorePayload("-1"), want: domain.VerdictRejectOutOfRange},
		{name: "fractional score", payload: scorePayload("3.5"), want: domain.VerdictRejectOutOfRange},
		{
			name:    "flagged with valid score",
			payload: &domain.GamePayload{Score: num("10"), Flagged: true},
			want:    domain.VerdictRejectFlagged,
		},
		{
			name:    "flagged beats out-of-range",
			payload: &domain.GamePayload{Score: num("-5"), Flagged: true},
			want:    domain.VerdictRejectFlagged,
		},
		{
			name:    "flagged without score",
			payload: &domain.GamePayload{Flagged: true},
			want:    domain.VerdictRejectFlagged,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := New(DefaultMaxScore, DefaultCooldown, ratelimit.NewMemoryStore())
			result := v.Validate(context.Background(), 42, tt.payload, now)
			if result.Verdict != tt.want {
				t.Fatalf("Validate() = %v, want %v", result.Verdict, tt.want)
			}
		})
	}
}

func TestValidateAcceptCarriesScore(t *testing.T) {
	t.Parallel()

	v := New(DefaultMaxScore, DefaultCooldown, ratelimit.NewMemoryStore())
	result := v.Validate(context.Background(), 42, scorePayload("1234"), time.Now())
	if result.Verdict != domain.VerdictAccept {
		t.Fatalf("Validate() = %v, want accept", result.Verdict)
	}
	if result.Score != 1234 {
		t.Fatalf("Score = %d, want 1234", result.Score)
	}
}

func TestValidateCooldown(t *testing.T) {
	t.Parallel()

	limits := ratelimit.NewMemoryStore()
	v := New(DefaultMaxScore, 5*time.Second, limits)
	ctx := context.Background()
	base := time.Now()

	// First submission accepted, then the caller marks the cooldown.
	result := v.Validate(ctx, 42, scorePayload("100"), base)
	if result.Verdict != domain.VerdictAccept {
		t.Fatalf("first Validate() = %v, want accept", result.Verdict)
	}
	if err := limits.MarkAccepted(ctx, 42, base); err != nil {
		t.Fatalf("MarkAccepted returned error: %v", err)
	}

	// Inside the window: rejected.
	result = v.Validate(ctx, 42, scorePayload("200"), base.Add(2*time.Second))
	if result.Verdict != domain.VerdictRejectRateLimited {
		t.Fatalf("Validate() inside cooldown = %v, want rate limited", result.Verdict)
	}

	// A different user is unaffected.
	result = v.Validate(ctx, 43, scorePayload("200"), base.Add(2*time.Second))
	if result.Verdict != domain.VerdictAccept {
		t.Fatalf("Validate() other user = %v, want accept", result.Verdict)
	}

	// After the window: accepted again.
	result = v.Validate(ctx, 42, scorePayload("200"), base.Add(5*time.Second))
	if result.Verdict != domain.VerdictAccept {
		t.Fatalf("Validate() after cooldown = %v, want accept", result.Verdict)
	}
}

func TestValidateFlaggedInsideCooldown(t *testing.T) {
	t.Parallel()

	limits := ratelimit.NewMemoryStore()
	v := New(DefaultMaxScore, 5*time.Second, limits)
	ctx := context.Background()
	base := time.Now()

	if err := limits.MarkAccepted(ctx, 42, base); err != nil {
		t.Fatalf("MarkAccepted returned error: %v", err)
	}

	// The flag check runs before the cooldown check, so the cheat verdict
	// wins and the caller still records the flag.
	payload := &domain.GamePayload{Score: num("10"), Flagged: true}
	result := v.Validate(ctx, 42, payload, base.Add(time.Second))
	if result.Verdict != domain.VerdictRejectFlagged {
		t.Fatalf("Validate() = %v, want flagged", result.Verdict)
	}
}

type failingLimits struct{}

func (failingLimits) LastAccepted(context.Context, int64) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("limiter down")
}

func (failingLimits) MarkAccepted(context.Context, int64, time.Time) error {
	return errors.New("limiter down")
}

func TestValidateFailsOpenOnLimiterError(t *testing.T) {
	t.Parallel()

	v := New(DefaultMaxScore, DefaultCooldown, failingLimits{})
	result := v.Validate(context.Background(), 42, scorePayload("100"), time.Now())
	if result.Verdict != domain.VerdictAccept {
		t.Fatalf("Validate() = %v, want accept when limiter is unavailable", result.Verdict)
	}
}

func TestValidateEventMalformed(t *testing.T) {
	t.Parallel()

	v := New(DefaultMaxScore, DefaultCooldown, nil)
	event := domain.SubmissionEvent{
		UserID:     42,
		RawPayload: `{"score":`,
		ReceivedAt: time.Now(),
	}
	result := v.ValidateEvent(context.Background(), event)
	if result.Verdict != domain.VerdictRejectMalformed {
		t.Fatalf("ValidateEvent() = %v, want malformed", result.Verdict)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	v := New(0, 0, nil)
	if v.maxScore != DefaultMaxScore {
		t.Fatalf("maxScore = %d, want %d", v.maxScore, DefaultMaxScore)
	}
	if v.Cooldown() != DefaultCooldown {
		t.Fatalf("Cooldown() = %v, want %v", v.Cooldown(), DefaultCooldown)
	}
}
