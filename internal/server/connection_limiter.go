package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason identifies which limit rejected a connection attempt. The
// values double as the reason label on the rejection counter.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// GlobalConnectionLimiter caps concurrent WebSocket connections for the whole
// instance with a lock-free counter.
type GlobalConnectionLimiter struct {
	n   atomic.Int64
	max int64
}

func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

// Acquire claims a slot, returning false at capacity.
func (g *GlobalConnectionLimiter) Acquire() bool {
	for {
		n := g.n.Load()
		if n >= g.max {
			return false
		}
		if g.n.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *GlobalConnectionLimiter) Release() {
	g.n.Add(-1)
}

func (g *GlobalConnectionLimiter) Current() int64 { return g.n.Load() }

func (g *GlobalConnectionLimiter) Max() int64 { return g.max }

// IPConnectionLimiter caps concurrent connections per remote address, so one
// misbehaving participant cannot monopolize the instance slot pool.
type IPConnectionLimiter struct {
	mu    sync.RWMutex
	byIP  map[string]int
	limit int
}

func NewIPConnectionLimiter(maxPer int) *IPConnectionLimiter {
	return &IPConnectionLimiter{byIP: make(map[string]int), limit: maxPer}
}

// Acquire claims a slot for ip, returning false when that address is already
// at its limit.
func (l *IPConnectionLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byIP[ip] >= l.limit {
		return false
	}
	l.byIP[ip]++
	return true
}

// Release returns a slot. Entries that reach zero are dropped so the map does
// not grow with every address ever seen.
func (l *IPConnectionLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.byIP[ip]
	if !ok {
		return
	}
	if n <= 1 {
		delete(l.byIP, ip)
		return
	}
	l.byIP[ip] = n - 1
}

func (l *IPConnectionLimiter) Count(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byIP[ip]
}

func (l *IPConnectionLimiter) UniqueIPs() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byIP)
}

// ConnectionRateLimiter throttles how fast new connections may arrive from a
// single address, using one token bucket per IP.
type ConnectionRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	rate    rate.Limit
	burst   int
	sweepAt time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	bucketSweepInterval = 5 * time.Minute
	bucketIdleCutoff    = 10 * time.Minute
)

func NewConnectionRateLimiter(connectionsPerSecond float64, burst int) *ConnectionRateLimiter {
	return &ConnectionRateLimiter{
		buckets: make(map[string]*ipBucket),
		rate:    rate.Limit(connectionsPerSecond),
		burst:   burst,
		sweepAt: time.Now().Add(bucketSweepInterval),
	}
}

// Allow reports whether a new connection from ip fits within its bucket.
func (l *ConnectionRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.sweepAt) {
		l.sweepIdle(now)
		l.sweepAt = now.Add(bucketSweepInterval)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// sweepIdle drops buckets that have been quiet past the cutoff. Caller holds mu.
func (l *ConnectionRateLimiter) sweepIdle(now time.Time) {
	cutoff := now.Add(-bucketIdleCutoff)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

func (l *ConnectionRateLimiter) ActiveLimiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ConnectionLimits chains the three limiters in cost order: the rate check is
// cheapest and runs first, the per-IP cap runs last so a rejection there can
// roll back the global slot it just took.
type ConnectionLimits struct {
	global *GlobalConnectionLimiter
	perIP  *IPConnectionLimiter
	rate   *ConnectionRateLimiter
}

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		global: NewGlobalConnectionLimiter(globalMax),
		perIP:  NewIPConnectionLimiter(perIPMax),
		rate:   NewConnectionRateLimiter(connectionsPerSecond, burst),
	}
}

// Acquire claims every limit for ip. On rejection it reports which limit
// refused and leaves no slot held.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.Allow(ip) {
		return false, LimitReasonRate
	}
	if !l.global.Acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.Acquire(ip) {
		l.global.Release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release returns the slots taken by a successful Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.perIP.Release(ip)
	l.global.Release()
}

func (l *ConnectionLimits) Global() *GlobalConnectionLimiter { return l.global }

func (l *ConnectionLimits) PerIP() *IPConnectionLimiter { return l.perIP }

func (l *ConnectionLimits) Rate() *ConnectionRateLimiter { return l.rate }
