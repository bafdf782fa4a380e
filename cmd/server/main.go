package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tapboard/internal/config"
	"github.com/tapboard/internal/handler"
	"github.com/tapboard/internal/kafka"
	"github.com/tapboard/internal/postgres"
	"github.com/tapboard/internal/ratelimit"
	"github.com/tapboard/internal/redis"
	"github.com/tapboard/internal/service"
	"github.com/tapboard/internal/validator"
	"github.com/tapboard/internal/websocket"
	"github.com/tapboard/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis realtime board
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	board, err := redis.NewBoard(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer board.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Cooldown state: process-local by default, Redis-backed when the
	// deployment runs more than one instance.
	var limits validator.RateLimitStore
	if cfg.Game.SharedRateLimit {
		limits = ratelimit.NewRedisStore(board.Client(), cfg.Game.Cooldown)
		logger.Info("using shared rate limit store")
	} else {
		limits = ratelimit.NewMemoryStore()
	}

	// Initialize validation and service layers
	gate := validator.New(cfg.Game.MaxScore, cfg.Game.Cooldown, limits)
	scoreService := service.NewScoreService(repo, board, gate, limits, &cfg.Game, logger)
	scoreService.SetHub(wsHub)

	// Initialize rebuild worker and populate the realtime board on startup
	rebuildWorker := worker.NewRebuildWorker(repo, board, &cfg.Rebuild, logger)

	logger.Info("rebuilding realtime board from database")
	if err := rebuildWorker.Rebuild(ctx); err != nil {
		logger.Warn("failed to rebuild realtime board on startup", "error", err)
	}

	if cfg.Rebuild.Enabled {
		if err := rebuildWorker.Start(ctx); err != nil {
			logger.Error("failed to start rebuild worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-load submission ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, scoreService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(scoreService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop rebuild worker
	if err := rebuildWorker.Stop(); err != nil {
		logger.Error("failed to stop rebuild worker", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
