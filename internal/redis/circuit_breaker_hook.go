package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
)

// CircuitBreakerHook guards every Redis command behind a shared circuit
// breaker. When Redis is down the breaker opens and commands fail fast
// instead of stacking up on a dead connection. Simple string reads can still
// be answered from a short-lived cache of the last seen values, which keeps
// read-mostly endpoints limping along during an outage.
//
// Installed as a client hook so it composes with MetricsHook and covers
// commands issued anywhere in the codebase.
type CircuitBreakerHook struct {
	cb    circuitbreaker.CircuitBreaker[any]
	cache *cacheStore
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

const cacheTTL = 5 * time.Minute

type cachedValue struct {
	data      string
	timestamp time.Time
}

// cacheStore is the read-through fallback used while the breaker is open.
type cacheStore struct {
	mu     sync.RWMutex
	values map[string]cachedValue
}

func (s *cacheStore) put(key, value string) {
	s.mu.Lock()
	s.values[key] = cachedValue{data: value, timestamp: time.Now()}
	s.mu.Unlock()
}

func (s *cacheStore) get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok || time.Since(v.timestamp) > cacheTTL {
		return "", false
	}
	return v.data, true
}

// NewCircuitBreakerHook builds the production breaker: open at a 60% failure
// rate over at least 5 requests in a 10s window, stay open for 30s, and close
// again after a single half-open success.
func NewCircuitBreakerHook() *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("redis circuit breaker state changed",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("redis", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:    cb,
		cache: &cacheStore{values: make(map[string]cachedValue)},
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("redis dial failed: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.serveOpen(cmd)
		}

		err := next(ctx, cmd)

		// A missing key is a normal answer, not a Redis failure.
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return fmt.Errorf("redis command %s failed: %w", cmd.Name(), err)
		}
		h.cb.RecordSuccess()
		h.rememberRead(cmd)
		if err != nil {
			return err
		}
		return nil
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		if err := next(ctx, cmds); err != nil {
			h.cb.RecordError(err)
			return fmt.Errorf("redis pipeline failed: %w", err)
		}
		h.cb.RecordSuccess()
		return nil
	}
}

// cachableRead reports whether cmd is a read whose last value is worth
// serving stale. Session hashes and vote sets mutate too quickly for that,
// so only plain GET and HGET qualify.
func cachableRead(cmd goredis.Cmder) bool {
	switch cmd.Name() {
	case "get", "hget":
		return true
	}
	return false
}

// serveOpen answers a command while the breaker is open: cachable reads may
// come from the fallback cache, everything else fails immediately.
func (h *CircuitBreakerHook) serveOpen(cmd goredis.Cmder) error {
	if cachableRead(cmd) {
		if key, ok := cmdKey(cmd); ok {
			if value, hit := h.cache.get(key); hit {
				if c, ok := cmd.(*goredis.StringCmd); ok {
					slog.Debug("serving redis read from fallback cache", "command", cmd.Name(), "key", key)
					c.SetVal(value)
					return nil
				}
			}
		}
		return fmt.Errorf("redis circuit breaker open, no cached value: %w", circuitbreaker.ErrOpen)
	}

	slog.Warn("redis circuit breaker open, rejecting command", "command", cmd.Name())
	return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
}

// rememberRead stores the result of a successful cachable read for fallback.
func (h *CircuitBreakerHook) rememberRead(cmd goredis.Cmder) {
	if !cachableRead(cmd) {
		return
	}
	key, ok := cmdKey(cmd)
	if !ok {
		return
	}
	c, ok := cmd.(*goredis.StringCmd)
	if !ok {
		return
	}
	if value, err := c.Result(); err == nil && value != "" {
		h.cache.put(key, value)
	}
}

// cmdKey extracts the key argument from a command, e.g. GET <key>.
func cmdKey(cmd goredis.Cmder) (string, bool) {
	args := cmd.Args()
	if len(args) < 2 {
		return "", false
	}
	return fmt.Sprintf("%v", args[1]), true
}

// GetState exposes the breaker state for the readiness probe and tests.
func (h *CircuitBreakerHook) GetState() circuitbreaker.State {
	return h.cb.State()
}
