package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/ParashDev/sprintor-sub000/internal/redis"
)

// One-shot orphan session sweeper. The server runs the same sweep on a timer;
// this tool exists for manual runs and for deployments that schedule cleanup
// externally (cron, Kubernetes jobs).
func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		maxAge   = flag.Duration("max-age", 5*time.Minute, "Delete sessions disconnected longer than this")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't delete anything)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	client, err := redis.NewClient(*redisURL)
	if err != nil {
		log.Fatalf("Failed to create Redis client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	repo := redis.NewSessionRepo(client.Underlying(), clockwork.NewRealClock())
	if err := sweep(ctx, repo, *maxAge, *dryRun); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
}

func sweep(ctx context.Context, repo *redis.SessionRepo, maxAge time.Duration, dryRun bool) error {
	start := time.Now()
	slog.Info("Starting sweep", "max_age", maxAge, "dry_run", dryRun)

	orphans, err := repo.ListOrphans(ctx, maxAge)
	if err != nil {
		return err
	}

	var deleted, skipped int
	for _, id := range orphans {
		if dryRun {
			slog.Info("Would delete session", "session_id", id.String())
			deleted++
			continue
		}

		if err := repo.Delete(ctx, id); err != nil {
			if errors.Is(err, domain.ErrSessionActive) {
				slog.Debug("Skipping reconnected session", "session_id", id.String())
				skipped++
				continue
			}
			slog.Error("Failed to delete session", "session_id", id.String(), "error", err)
			skipped++
			continue
		}

		slog.Debug("Deleted orphan session", "session_id", id.String())
		deleted++
	}

	slog.Info("Sweep summary",
		"candidates", len(orphans),
		"deleted", deleted,
		"skipped", skipped,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func sanitizeURL(url string) string {
	// Hide password in Redis URL for logging
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			credParts := strings.Split(parts[0], ":")
			if len(credParts) >= 2 {
				return credParts[0] + ":***@" + parts[1]
			}
		}
	}
	return url
}
