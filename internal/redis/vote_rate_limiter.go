package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// voteRateLimitScript implements a token bucket per session. Refill is
// computed from the elapsed time since the last call, so no background job
// is needed. State lives in a small hash with a safety TTL.
var voteRateLimitScript = goredis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate_per_min = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(bucket[1])
local last_ms = tonumber(bucket[2])

if tokens == nil then
  tokens = capacity
  last_ms = now_ms
end

local elapsed_ms = math.max(0, now_ms - last_ms)
tokens = math.min(capacity, tokens + elapsed_ms * rate_per_min / 60000)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', now_ms)
redis.call('EXPIRE', key, 3600)
return allowed
`)

// VoteRateLimiter implements token bucket rate limiting for votes.
type VoteRateLimiter struct {
	rdb      *goredis.Client
	clock    clockwork.Clock
	capacity int
	rate     int // tokens per minute
}

// NewVoteRateLimiter creates a new vote rate limiter.
// capacity: maximum burst size (tokens)
// rate: sustained rate (tokens per minute)
func NewVoteRateLimiter(rdb *goredis.Client, clock clockwork.Clock, capacity, rate int) *VoteRateLimiter {
	return &VoteRateLimiter{
		rdb:      rdb,
		clock:    clock,
		capacity: capacity,
		rate:     rate,
	}
}

// Allow checks if a vote is allowed for the participant in the session.
// Returns true if allowed (token consumed), false if rate limited.
func (v *VoteRateLimiter) Allow(ctx context.Context, sessionID, participantID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("rate_limit:votes:%s:%s", sessionID, participantID)

	result, err := voteRateLimitScript.Run(ctx, v.rdb,
		[]string{key},
		v.clock.Now().UnixMilli(),
		v.capacity,
		v.rate,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return result == 1, nil
}
