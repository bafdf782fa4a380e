package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tapboard/internal/config"
	"github.com/tapboard/internal/domain"
	"github.com/tapboard/internal/validator"
)

// Store is the durable leaderboard store. *postgres.Repository implements it.
type Store interface {
	UpsertScore(ctx context.Context, userID int64, displayName string, score int64) error
	UpsertScoreBest(ctx context.Context, userID int64, displayName string, score int64) error
	TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	GetPlayer(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error)
	RecordFlag(ctx context.Context, userID int64, reason string, suspiciousCount int) error
	GetCheatRecord(ctx context.Context, userID int64) (*domain.CheatRecord, error)
	PlayerCount(ctx context.Context) (int64, error)
}

// Realtime is the Redis-backed fast path. *redis.Board implements it.
type Realtime interface {
	SetScore(ctx context.Context, userID, score int64) error
	PlayerRank(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error)
	Count(ctx context.Context) (int64, error)
	BoostBalance(ctx context.Context, userID int64) (int64, error)
	GrantBoosts(ctx context.Context, userID, n int64) (int64, error)
	UseBoost(ctx context.Context, userID int64) (int64, error)
}

// Broadcaster pushes leaderboard updates to connected websocket clients.
type Broadcaster interface {
	BroadcastLeaderboard(entries []domain.LeaderboardEntry, totalPlayers int64)
}

// ScoreService runs the whole submission path: parse, validate, persist,
// mirror, mark the cooldown, format the reply.
type ScoreService struct {
	store     Store
	board     Realtime
	validator *validator.Validator
	limits    validator.RateLimitStore
	cfg       *config.GameConfig
	hub       Broadcaster
	logger    *slog.Logger
}

// NewScoreService creates the submission service.
func NewScoreService(
	store Store,
	board Realtime,
	v *validator.Validator,
	limits validator.RateLimitStore,
	cfg *config.GameConfig,
	logger *slog.Logger,
) *ScoreService {
	return &ScoreService{
		store:     store,
		board:     board,
		validator: v,
		limits:    limits,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetHub attaches the websocket hub for broadcasting after accepted writes.
func (s *ScoreService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// ProcessSubmission handles one gateway event end to end and returns the
// outcome the gateway should deliver. Validation rejections are normal
// outcomes; only store failures surface as errors.
func (s *ScoreService) ProcessSubmission(ctx context.Context, event domain.SubmissionEvent) (*domain.Outcome, error) {
	payload, err := domain.ParsePayload(event.RawPayload)
	if err != nil {
		return &domain.Outcome{
			Verdict: domain.VerdictRejectMalformed,
			Reply:   domain.VerdictRejectMalformed.Reason(),
		}, nil
	}

	switch payload.Action {
	case domain.ActionGetBoosts:
		return s.getBoosts(ctx, event.UserID)
	case domain.ActionUseBoost:
		return s.useBoost(ctx, event.UserID)
	}

	result := s.validator.Validate(ctx, event.UserID, payload, event.ReceivedAt)

	switch result.Verdict {
	case domain.VerdictAccept:
		return s.commit(ctx, event, result.Score)

	case domain.VerdictRejectFlagged:
		// The flag lands in the cheat bookkeeping even when the sender is
		// inside the cooldown window.
		if err := s.store.RecordFlag(ctx, event.UserID, "client anti-cheat flag", payload.SuspiciousCount); err != nil {
			s.logger.Warn("failed to record cheat flag", "user_id", event.UserID, "error", err)
		}
		s.logger.Info("flagged submission rejected",
			"user_id", event.UserID,
			"suspicious_count", payload.SuspiciousCount,
		)
		fallthrough

	default:
		return &domain.Outcome{
			Verdict: result.Verdict,
			Reply:   result.Verdict.Reason(),
		}, nil
	}
}

// commit persists an accepted score and builds the top-N reply.
func (s *ScoreService) commit(ctx context.Context, event domain.SubmissionEvent, score int64) (*domain.Outcome, error) {
	name := CleanDisplayName(event.DisplayName)

	var err error
	if domain.UpdateMode(s.cfg.UpdateMode) == domain.UpdateModeBest {
		err = s.store.UpsertScoreBest(ctx, event.UserID, name, score)
	} else {
		err = s.store.UpsertScore(ctx, event.UserID, name, score)
	}
	if err != nil {
		return nil, fmt.Errorf("committing score: %w", err)
	}

	// Secondary writes: the realtime mirror and the cooldown mark follow the
	// durable write and must not fail the request.
	if s.board != nil {
		if err := s.board.SetScore(ctx, event.UserID, score); err != nil {
			s.logger.Warn("failed to mirror score to realtime board", "user_id", event.UserID, "error", err)
		}
	}
	if s.limits != nil {
		if err := s.limits.MarkAccepted(ctx, event.UserID, event.ReceivedAt); err != nil {
			s.logger.Warn("failed to mark rate limit state", "user_id", event.UserID, "error", err)
		}
	}

	entries, err := s.store.TopN(ctx, s.cfg.TopSize)
	if err != nil {
		s.logger.Warn("failed to read top entries after accept", "error", err)
		return &domain.Outcome{
			Verdict: domain.VerdictAccept,
			Reply:   domain.VerdictAccept.Reason(),
		}, nil
	}

	if s.hub != nil {
		total := int64(len(entries))
		if count, err := s.store.PlayerCount(ctx); err == nil {
			total = count
		}
		s.hub.BroadcastLeaderboard(entries, total)
	}

	return &domain.Outcome{
		Verdict: domain.VerdictAccept,
		Reply:   FormatTop(entries),
		Entries: entries,
	}, nil
}

func (s *ScoreService) getBoosts(ctx context.Context, userID int64) (*domain.Outcome, error) {
	balance, err := s.board.BoostBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting boosts: %w", err)
	}
	return &domain.Outcome{
		Verdict: domain.VerdictAccept,
		Reply:   fmt.Sprintf("you have %d boosts", balance),
	}, nil
}

func (s *ScoreService) useBoost(ctx context.Context, userID int64) (*domain.Outcome, error) {
	remaining, err := s.board.UseBoost(ctx, userID)
	if err == domain.ErrNoBoosts {
		return &domain.Outcome{
			Verdict: domain.VerdictAccept,
			Reply:   "no boosts left, invite a friend to earn more",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("using boost: %w", err)
	}
	return &domain.Outcome{
		Verdict: domain.VerdictAccept,
		Reply:   fmt.Sprintf("boost activated, %d remaining", remaining),
	}, nil
}

// GrantReferralBoosts credits the configured referral reward to a user.
func (s *ScoreService) GrantReferralBoosts(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.board.GrantBoosts(ctx, userID, s.cfg.ReferralBoosts)
	if err != nil {
		return 0, fmt.Errorf("granting referral boosts: %w", err)
	}
	return balance, nil
}

// TopN returns up to n ranked entries from the durable store.
func (s *ScoreService) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = s.cfg.TopSize
	}
	if n > s.cfg.MaxLimit {
		n = s.cfg.MaxLimit
	}
	return s.store.TopN(ctx, n)
}

// TopText returns the formatted top-N reply text.
func (s *ScoreService) TopText(ctx context.Context) (string, error) {
	entries, err := s.store.TopN(ctx, s.cfg.TopSize)
	if err != nil {
		return "", fmt.Errorf("getting top entries: %w", err)
	}
	return FormatTop(entries), nil
}

// GetPlayer returns a user's rank and score, preferring the realtime board
// and falling back to the durable store.
func (s *ScoreService) GetPlayer(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	if s.board != nil {
		entry, err := s.board.PlayerRank(ctx, userID)
		if err == nil {
			// The board only carries ids and scores; fill the name from the
			// durable row when available.
			if stored, serr := s.store.GetPlayer(ctx, userID); serr == nil {
				entry.DisplayName = stored.DisplayName
			}
			return entry, nil
		}
		if err != domain.ErrPlayerNotFound {
			s.logger.Warn("realtime rank lookup failed, falling back to store", "error", err)
		}
	}
	return s.store.GetPlayer(ctx, userID)
}

// GetCheatRecord returns a user's cheat record.
func (s *ScoreService) GetCheatRecord(ctx context.Context, userID int64) (*domain.CheatRecord, error) {
	return s.store.GetCheatRecord(ctx, userID)
}
