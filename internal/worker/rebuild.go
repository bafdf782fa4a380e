package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tapboard/internal/config"
	"github.com/tapboard/internal/domain"
)

// ScoreSource is where the authoritative scores live. *postgres.Repository
// implements it.
type ScoreSource interface {
	AllScores(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// BoardTarget is the realtime view being rebuilt. *redis.Board implements it.
type BoardTarget interface {
	Clear(ctx context.Context) error
	BatchSetScores(ctx context.Context, entries []domain.LeaderboardEntry) error
}

// RebuildWorker periodically repopulates the Redis realtime board from
// PostgreSQL. The board is a mirror, so a rebuild repairs drift and recovers
// from a flushed or replaced Redis instance.
type RebuildWorker struct {
	source  ScoreSource
	board   BoardTarget
	config  *config.RebuildConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRebuildWorker creates a new rebuild worker
func NewRebuildWorker(
	source ScoreSource,
	board BoardTarget,
	cfg *config.RebuildConfig,
	logger *slog.Logger,
) *RebuildWorker {
	return &RebuildWorker{
		source: source,
		board:  board,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background rebuild process
func (w *RebuildWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("rebuild worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background rebuild process
func (w *RebuildWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("rebuild worker stopped")
	return nil
}

// run is the main worker loop
func (w *RebuildWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.Rebuild(ctx); err != nil {
				w.logger.Error("rebuild cycle failed", "error", err)
			}
		}
	}
}

// Rebuild repopulates the realtime board from the durable store, batched.
func (w *RebuildWorker) Rebuild(ctx context.Context) error {
	startTime := time.Now()

	entries, err := w.source.AllScores(ctx)
	if err != nil {
		return err
	}

	if err := w.board.Clear(ctx); err != nil {
		return err
	}

	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := w.board.BatchSetScores(ctx, entries[start:end]); err != nil {
			return err
		}
	}

	w.logger.Info("rebuilt realtime board",
		"player_count", len(entries),
		"duration", time.Since(startTime),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *RebuildWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
