package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tapboard/internal/config"
	"github.com/tapboard/internal/domain"
	"github.com/tapboard/internal/ratelimit"
	"github.com/tapboard/internal/validator"
)

// fakeStore is an in-memory Store for exercising the submission path without
// a database.
type fakeStore struct {
	entries map[int64]domain.LeaderboardEntry
	cheats  map[int64]domain.CheatRecord
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[int64]domain.LeaderboardEntry),
		cheats:  make(map[int64]domain.CheatRecord),
	}
}

var errStoreDown = errors.New("store unavailable")

func (s *fakeStore) UpsertScore(_ context.Context, userID int64, displayName string, score int64) error {
	if s.failAll {
		return errStoreDown
	}
	s.entries[userID] = domain.LeaderboardEntry{UserID: userID, DisplayName: displayName, Score: score}
	return nil
}

func (s *fakeStore) UpsertScoreBest(_ context.Context, userID int64, displayName string, score int64) error {
	if s.failAll {
		return errStoreDown
	}
	if existing, ok := s.entries[userID]; ok && existing.Score > score {
		score = existing.Score
	}
	s.entries[userID] = domain.LeaderboardEntry{UserID: userID, DisplayName: displayName, Score: score}
	return nil
}

func (s *fakeStore) TopN(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if s.failAll {
		return nil, errStoreDown
	}
	all := make([]domain.LeaderboardEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		all = append(all, entry)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].UserID < all[j].UserID
	})
	if len(all) > n {
		all = all[:n]
	}
	for i := range all {
		all[i].Rank = int64(i + 1)
	}
	return all, nil
}

func (s *fakeStore) GetPlayer(_ context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	entry, ok := s.entries[userID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &entry, nil
}

func (s *fakeStore) RecordFlag(_ context.Context, userID int64, reason string, suspiciousCount int) error {
	record := s.cheats[userID]
	record.UserID = userID
	record.FlagCount++
	record.LastFlagReason = reason
	record.SuspiciousCount = suspiciousCount
	s.cheats[userID] = record
	return nil
}

func (s *fakeStore) GetCheatRecord(_ context.Context, userID int64) (*domain.CheatRecord, error) {
	record, ok := s.cheats[userID]
	if !ok {
		return nil, domain.ErrNoCheatRecord
	}
	return &record, nil
}

func (s *fakeStore) PlayerCount(_ context.Context) (int64, error) {
	return int64(len(s.entries)), nil
}

// fakeBoard is an in-memory Realtime implementation.
type fakeBoard struct {
	scores map[int64]int64
	boosts map[int64]int64
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		scores: make(map[int64]int64),
		boosts: make(map[int64]int64),
	}
}

func (b *fakeBoard) SetScore(_ context.Context, userID, score int64) error {
	b.scores[userID] = score
	return nil
}

func (b *fakeBoard) PlayerRank(_ context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	score, ok := b.scores[userID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	rank := int64(1)
	for other, s := range b.scores {
		if s > score || (s == score && other < userID) {
			rank++
		}
	}
	return &domain.LeaderboardEntry{UserID: userID, Score: score, Rank: rank}, nil
}

func (b *fakeBoard) Count(_ context.Context) (int64, error) {
	return int64(len(b.scores)), nil
}

func (b *fakeBoard) BoostBalance(_ context.Context, userID int64) (int64, error) {
	return b.boosts[userID], nil
}

func (b *fakeBoard) GrantBoosts(_ context.Context, userID, n int64) (int64, error) {
	b.boosts[userID] += n
	return b.boosts[userID], nil
}

func (b *fakeBoard) UseBoost(_ context.Context, userID int64) (int64, error) {
	if b.boosts[userID] <= 0 {
		return 0, domain.ErrNoBoosts
	}
	b.boosts[userID]--
	return b.boosts[userID], nil
}

// fakeHub records broadcasts.
type fakeHub struct {
	broadcasts int
	lastTotal  int64
}

func (h *fakeHub) BroadcastLeaderboard(_ []domain.LeaderboardEntry, totalPlayers int64) {
	h.broadcasts++
	h.lastTotal = totalPlayers
}

func testGameConfig() *config.GameConfig {
	return &config.GameConfig{
		MaxScore:       10_000_000,
		Cooldown:       5 * time.Second,
		TopSize:        10,
		MaxLimit:       100,
		UpdateMode:     "replace",
		ReferralBoosts: 1,
	}
}

func newTestService(t *testing.T, cfg *config.GameConfig) (*ScoreService, *fakeStore, *fakeBoard, *fakeHub) {
	t.Helper()
	store := newFakeStore()
	board := newFakeBoard()
	hub := &fakeHub{}
	limits := ratelimit.NewMemoryStore()
	gate := validator.New(cfg.MaxScore, cfg.Cooldown, limits)
	svc := NewScoreService(store, board, gate, limits, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetHub(hub)
	return svc, store, board, hub
}

func event(userID int64, name, payload string, at time.Time) domain.SubmissionEvent {
	return domain.SubmissionEvent{
		UserID:      userID,
		DisplayName: name,
		RawPayload:  payload,
		ReceivedAt:  at,
	}
}

func TestProcessSubmissionAccept(t *testing.T) {
	t.Parallel()

	svc, store, board, hub := newTestService(t, testGameConfig())
	ctx := context.Background()

	outcome, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 500}`, time.Now()))
	if err != nil {
		t.Fatalf("ProcessSubmission returned error: %v", err)
	}
	if outcome.Verdict != domain.VerdictAccept {
		t.Fatalf("Verdict = %v, want accept", outcome.Verdict)
	}

	stored := store.entries[42]
	if stored.DisplayName != "Ann" || stored.Score != 500 {
		t.Fatalf("stored = %+v, want (Ann, 500)", stored)
	}
	if len(store.entries) != 1 {
		t.Fatalf("store has %d rows, want 1", len(store.entries))
	}
	if board.scores[42] != 500 {
		t.Fatalf("board score = %d, want 500", board.scores[42])
	}
	if hub.broadcasts != 1 {
		t.Fatalf("broadcasts = %d, want 1", hub.broadcasts)
	}
	if len(outcome.Entries) != 1 || outcome.Entries[0].DisplayName != "Ann" || outcome.Entries[0].Score != 500 {
		t.Fatalf("Entries = %+v, want [(Ann, 500)]", outcome.Entries)
	}
	if !strings.Contains(outcome.Reply, "Ann") {
		t.Fatalf("Reply %q does not mention the player", outcome.Reply)
	}
}

func TestProcessSubmissionLastWriteWins(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t, testGameConfig())
	ctx := context.Background()
	base := time.Now()

	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 500}`, base)); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	// Past the cooldown, a lower score overwrites in replace mode.
	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 300}`, base.Add(6*time.Second))); err != nil {
		t.Fatalf("second submission: %v", err)
	}

	if got := store.entries[42].Score; got != 300 {
		t.Fatalf("stored score = %d, want 300 (last write wins)", got)
	}
}

func TestProcessSubmissionBestMode(t *testing.T) {
	t.Parallel()

	cfg := testGameConfig()
	cfg.UpdateMode = "best"
	svc, store, _, _ := newTestService(t, cfg)
	ctx := context.Background()
	base := time.Now()

	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 500}`, base)); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 300}`, base.Add(6*time.Second))); err != nil {
		t.Fatalf("second submission: %v", err)
	}

	if got := store.entries[42].Score; got != 500 {
		t.Fatalf("stored score = %d, want 500 (best mode keeps the maximum)", got)
	}
}

func TestProcessSubmissionOutOfRange(t *testing.T) {
	t.Parallel()

	svc, store, _, hub := newTestService(t, testGameConfig())
	ctx := context.Background()

	outcome, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 50000001}`, time.Now()))
	if err != nil {
		t.Fatalf("ProcessSubmission returned error: %v", err)
	}
	if outcome.Verdict != domain.VerdictRejectOutOfRange {
		t.Fatalf("Verdict = %v, want out of range", outcome.Verdict)
	}
	if len(store.entries) != 0 {
		t.Fatal("store changed on rejected submission")
	}
	if hub.broadcasts != 0 {
		t.Fatal("broadcast sent for rejected submission")
	}
}

func TestProcessSubmissionFlagged(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t, testGameConfig())
	ctx := context.Background()

	outcome, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"flagged": true, "score": 10, "suspiciousCount": 3}`, time.Now()))
	if err != nil {
		t.Fatalf("ProcessSubmission returned error: %v", err)
	}
	if outcome.Verdict != domain.VerdictRejectFlagged {
		t.Fatalf("Verdict = %v, want flagged", outcome.Verdict)
	}
	if len(store.entries) != 0 {
		t.Fatal("leaderboard changed on flagged submission")
	}

	record, err := store.GetCheatRecord(ctx, 42)
	if err != nil {
		t.Fatalf("GetCheatRecord returned error: %v", err)
	}
	if record.FlagCount != 1 {
		t.Fatalf("FlagCount = %d, want 1", record.FlagCount)
	}
	if record.SuspiciousCount != 3 {
		t.Fatalf("SuspiciousCount = %d, want 3", record.SuspiciousCount)
	}

	// A second flagged event increments.
	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"flagged": true, "score": 10}`, time.Now())); err != nil {
		t.Fatalf("second flagged submission: %v", err)
	}
	record, _ = store.GetCheatRecord(ctx, 42)
	if record.FlagCount != 2 {
		t.Fatalf("FlagCount = %d, want 2", record.FlagCount)
	}
}

func TestProcessSubmissionRateLimited(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t, testGameConfig())
	ctx := context.Background()
	base := time.Now()

	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 500}`, base)); err != nil {
		t.Fatalf("first submission: %v", err)
	}

	outcome, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 900}`, base.Add(2*time.Second)))
	if err != nil {
		t.Fatalf("second submission: %v", err)
	}
	if outcome.Verdict != domain.VerdictRejectRateLimited {
		t.Fatalf("Verdict = %v, want rate limited", outcome.Verdict)
	}
	if got := store.entries[42].Score; got != 500 {
		t.Fatalf("stored score = %d, want 500 (rate-limited write must not apply)", got)
	}
	if _, err := store.GetCheatRecord(ctx, 42); err != domain.ErrNoCheatRecord {
		t.Fatal("rate-limited submission touched the cheat record")
	}
}

func TestProcessSubmissionMalformed(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t, testGameConfig())
	ctx := context.Background()

	for _, raw := range []string{`{"score":`, `hello`, `{}`} {
		outcome, err := svc.ProcessSubmission(ctx, event(42, "Ann", raw, time.Now()))
		if err != nil {
			t.Fatalf("ProcessSubmission(%q) returned error: %v", raw, err)
		}
		if outcome.Verdict != domain.VerdictRejectMalformed {
			t.Fatalf("ProcessSubmission(%q) = %v, want malformed", raw, outcome.Verdict)
		}
	}
	if len(store.entries) != 0 {
		t.Fatal("store changed on malformed submission")
	}
}

func TestProcessSubmissionStoreDown(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := newTestService(t, testGameConfig())
	store.failAll = true

	_, err := svc.ProcessSubmission(context.Background(), event(42, "Ann", `{"score": 500}`, time.Now()))
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("ProcessSubmission error = %v, want store failure", err)
	}
}

func TestBoostActions(t *testing.T) {
	t.Parallel()

	svc, _, board, _ := newTestService(t, testGameConfig())
	ctx := context.Background()

	outcome, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"action": "get_boosts"}`, time.Now()))
	if err != nil {
		t.Fatalf("get_boosts: %v", err)
	}
	if !strings.Contains(outcome.Reply, "0 boosts") {
		t.Fatalf("Reply = %q, want zero balance", outcome.Reply)
	}

	// Using a boost on an empty balance fails without going negative.
	outcome, err = svc.ProcessSubmission(ctx, event(42, "Ann", `{"action": "use_boost"}`, time.Now()))
	if err != nil {
		t.Fatalf("use_boost: %v", err)
	}
	if !strings.Contains(outcome.Reply, "no boosts") {
		t.Fatalf("Reply = %q, want empty-balance message", outcome.Reply)
	}
	if board.boosts[42] != 0 {
		t.Fatalf("balance = %d, want 0", board.boosts[42])
	}

	if _, err := svc.GrantReferralBoosts(ctx, 42); err != nil {
		t.Fatalf("GrantReferralBoosts: %v", err)
	}
	outcome, err = svc.ProcessSubmission(ctx, event(42, "Ann", `{"action": "use_boost"}`, time.Now()))
	if err != nil {
		t.Fatalf("use_boost after grant: %v", err)
	}
	if !strings.Contains(outcome.Reply, "0 remaining") {
		t.Fatalf("Reply = %q, want 0 remaining", outcome.Reply)
	}
}

func TestTopNOrderingAndLimit(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t, testGameConfig())
	ctx := context.Background()
	base := time.Now()

	users := []struct {
		id    int64
		name  string
		score int64
	}{
		{1, "Low", 10},
		{2, "High", 9000},
		{3, "Mid", 500},
		{4, "TiedA", 500},
	}
	for i, u := range users {
		raw := event(u.id, u.name, `{"score": `+strconv.FormatInt(u.score, 10)+`}`, base.Add(time.Duration(i)*10*time.Second))
		if _, err := svc.ProcessSubmission(ctx, raw); err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}

	entries, err := svc.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("TopN returned error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("TopN returned %d entries, want all 4", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Score > entries[i-1].Score {
			t.Fatalf("entries not sorted non-increasing: %+v", entries)
		}
	}
	// Ties break on user id ascending.
	if entries[1].UserID != 3 || entries[2].UserID != 4 {
		t.Fatalf("tie-break wrong: %+v", entries)
	}

	top1, err := svc.TopN(ctx, 1)
	if err != nil {
		t.Fatalf("TopN(1) returned error: %v", err)
	}
	if len(top1) != 1 || top1[0].DisplayName != "High" {
		t.Fatalf("TopN(1) = %+v, want [High]", top1)
	}
}

func TestGetPlayerPrefersRealtime(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t, testGameConfig())
	ctx := context.Background()
	base := time.Now()

	if _, err := svc.ProcessSubmission(ctx, event(42, "Ann", `{"score": 500}`, base)); err != nil {
		t.Fatalf("submission: %v", err)
	}
	if _, err := svc.ProcessSubmission(ctx, event(7, "Bob", `{"score": 900}`, base)); err != nil {
		t.Fatalf("submission: %v", err)
	}

	entry, err := svc.GetPlayer(ctx, 42)
	if err != nil {
		t.Fatalf("GetPlayer returned error: %v", err)
	}
	if entry.Rank != 2 || entry.Score != 500 {
		t.Fatalf("entry = %+v, want rank 2 score 500", entry)
	}
	if entry.DisplayName != "Ann" {
		t.Fatalf("DisplayName = %q, want Ann (filled from durable store)", entry.DisplayName)
	}

	if _, err := svc.GetPlayer(ctx, 999); err != domain.ErrPlayerNotFound {
		t.Fatalf("GetPlayer(999) error = %v, want ErrPlayerNotFound", err)
	}
}
