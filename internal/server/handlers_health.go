package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
)

// Narrow ping interfaces so tests can substitute the real clients.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

const readinessTimeout = 5 * time.Second

// handleLiveness answers as long as the process is serving requests. It
// deliberately touches no dependency.
func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

// handleReadiness pings both stores and reports the first one that fails, so
// the orchestrator stops routing traffic here until they recover.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	if err := s.pingRedis(ctx); err != nil {
		return readinessFailure(c, "redis", err)
	}
	if err := s.pingPostgres(ctx); err != nil {
		return readinessFailure(c, "postgres", err)
	}
	return c.JSON(200, map[string]string{"status": "ready"})
}

func readinessFailure(c echo.Context, check string, err error) error {
	return c.JSON(503, map[string]any{
		"status":       "unhealthy",
		"failed_check": check,
		"error":        err.Error(),
	})
}

func (s *Server) pingRedis(ctx context.Context) error {
	checker := redisHealthChecker(s.redisClient)
	if s.redisHealthCheck != nil {
		checker = s.redisHealthCheck
	}
	return checker.Ping(ctx).Err()
}

func (s *Server) pingPostgres(ctx context.Context) error {
	checker := postgresHealthChecker(s.pool)
	if s.postgresHealthCheck != nil {
		checker = s.postgresHealthCheck
	}
	return checker.Ping(ctx)
}
