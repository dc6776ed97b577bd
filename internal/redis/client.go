package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client owns the shared go-redis connection. Every client gets the metrics
// and circuit breaker hooks, so callers never talk to an uninstrumented
// connection.
type Client struct {
	rdb *redis.Client
}

// NewClient connects using a redis:// URL.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(&MetricsHook{})
	rdb.AddHook(NewCircuitBreakerHook())
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw go-redis client for the repositories, pub/sub
// and scripts that need it.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
