package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	RedisURL      string
	SessionSecret string
	DecksFile     string
	LogLevel      string
	LogFormat     string

	// Live session tuning
	MaxClientsPerSession int
	OrphanMaxAge         time.Duration
	CleanupInterval      time.Duration

	// Vote rate limiting (token bucket)
	VoteBurst         int
	VotesPerMinute    int
	ConnectionsPerIP  int
	ConnectionsPerSec float64
}

func Load() (*Config, error) {
	// Best effort: missing .env is the normal case in production
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		DecksFile:     getEnv("DECKS_FILE", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),

		MaxClientsPerSession: 50,
		OrphanMaxAge:         5 * time.Minute,
		CleanupInterval:      time.Minute,

		VoteBurst:         10,
		VotesPerMinute:    30,
		ConnectionsPerIP:  20,
		ConnectionsPerSec: 5,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 characters")
	}

	var err error
	if cfg.MaxClientsPerSession, err = getEnvInt("MAX_CLIENTS_PER_SESSION", cfg.MaxClientsPerSession); err != nil {
		return nil, err
	}
	if cfg.MaxClientsPerSession < 1 {
		return nil, fmt.Errorf("MAX_CLIENTS_PER_SESSION must be positive")
	}
	if cfg.OrphanMaxAge, err = getEnvDuration("ORPHAN_MAX_AGE", cfg.OrphanMaxAge); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = getEnvDuration("CLEANUP_INTERVAL", cfg.CleanupInterval); err != nil {
		return nil, err
	}
	if cfg.VoteBurst, err = getEnvInt("VOTE_BURST", cfg.VoteBurst); err != nil {
		return nil, err
	}
	if cfg.VotesPerMinute, err = getEnvInt("VOTES_PER_MINUTE", cfg.VotesPerMinute); err != nil {
		return nil, err
	}
	if cfg.VoteBurst < 1 || cfg.VotesPerMinute < 1 {
		return nil, fmt.Errorf("vote rate limit settings must be positive")
	}
	if cfg.ConnectionsPerIP, err = getEnvInt("CONNECTIONS_PER_IP", cfg.ConnectionsPerIP); err != nil {
		return nil, err
	}
	if cfg.ConnectionsPerSec, err = getEnvFloat("CONNECTIONS_PER_SEC", cfg.ConnectionsPerSec); err != nil {
		return nil, err
	}
	if cfg.ConnectionsPerIP < 1 || cfg.ConnectionsPerSec <= 0 {
		return nil, fmt.Errorf("connection limit settings must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 5m): %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
