package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/ParashDev/sprintor-sub000/internal/app"
	"github.com/ParashDev/sprintor-sub000/internal/config"
	"github.com/ParashDev/sprintor-sub000/internal/coordination"
	"github.com/ParashDev/sprintor-sub000/internal/database"
	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/logging"
	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/ParashDev/sprintor-sub000/internal/redis"
	"github.com/ParashDev/sprintor-sub000/internal/server"
	"github.com/ParashDev/sprintor-sub000/internal/version"
)

const leaderLeaseTTL = 90 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, appSvc *app.Service) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	decks, err := domain.LoadDecks(cfg.DecksFile)
	if err != nil {
		slog.Error("Failed to load estimation decks", "error", err)
		os.Exit(1)
	}

	// Postgres repositories
	projectRepo := database.NewProjectRepository(pool)
	epicRepo := database.NewEpicRepository(pool)
	storyRepo := database.NewStoryRepository(pool)
	sprintRepo := database.NewSprintRepository(pool)
	teamRepo := database.NewTeamRepository(pool)

	// Redis-backed session layer
	sessionRepo := redis.NewSessionRepo(redisClient.Underlying(), clock)
	pubsub := redis.NewPubSub(redisClient)
	voteLimiter := redis.NewVoteRateLimiter(redisClient.Underlying(), clock, cfg.VoteBurst, cfg.VotesPerMinute)

	instanceID := uuid.New().String()
	leader := coordination.NewLeaderElection(redisClient.Underlying(), instanceID, "leader:orphan_cleanup", leaderLeaseTTL)

	appSvc := app.NewService(
		projectRepo, epicRepo, storyRepo, sprintRepo, teamRepo,
		sessionRepo, pubsub, voteLimiter, leader, decks,
		clock, cfg.OrphanMaxAge, cfg.CleanupInterval,
	)

	srv := server.NewServer(cfg, appSvc, pubsub, redisClient.Underlying(), pool, clock)

	done := runGracefulShutdown(srv, appSvc)

	slog.Info("Server starting", "port", cfg.Port, "instance_id", instanceID)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
