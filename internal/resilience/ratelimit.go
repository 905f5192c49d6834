package resilience

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig defines per-route rate limit settings. Each caller of a
// route gets its own bucket.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size" json:"burst_size" toml:"burst_size"`
}

// RateLimiter implements token bucket rate limiting keyed by route and caller.
type RateLimiter struct {
	mu      sync.Mutex
	config  map[string]RateLimitConfig
	buckets map[bucketKey]*tokenBucket
	now     func() time.Time

	lastSweep time.Time
}

// sweepInterval bounds how often Allow scans for idle buckets.
const sweepInterval = time.Minute

type bucketKey struct {
	route   string
	subject string
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter creates a rate limiter with the provided per-route configuration.
func NewRateLimiter(config map[string]RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[bucketKey]*tokenBucket),
		now:     time.Now,
	}
	rl.Configure(config)
	return rl
}

// Configure replaces the per-route limits. Existing buckets keep their tokens
// but adopt the new rate and capacity.
func (rl *RateLimiter) Configure(config map[string]RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.config = make(map[string]RateLimitConfig, len(config))
	for route, cfg := range config {
		rl.config[route] = cfg
	}

	for key, bucket := range rl.buckets {
		cfg, ok := rl.config[key.route]
		if !ok {
			delete(rl.buckets, key)
			continue
		}
		bucket.configure(cfg.RequestsPerSecond, cfg.BurstSize)
	}
}

// Allow consumes a token for subject on route. Routes without configuration
// are unlimited.
func (rl *RateLimiter) Allow(route, subject string) Decision {
	now := rl.now()

	rl.mu.Lock()
	cfg, ok := rl.config[route]
	if !ok {
		rl.mu.Unlock()
		return Decision{Allowed: true}
	}
	if now.Sub(rl.lastSweep) >= sweepInterval {
		rl.sweepLocked(now)
	}
	key := bucketKey{route: route, subject: subject}
	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = newTokenBucket(cfg.RequestsPerSecond, cfg.BurstSize, now)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.take(now)
}

// sweepLocked drops buckets that have refilled completely. A full bucket is
// indistinguishable from a new one, so eviction never grants extra tokens.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, bucket := range rl.buckets {
		if bucket.idle(now) {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// tokenBucket implements a token bucket algorithm for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64   // tokens per second
	capacity   float64   // maximum burst size
	tokens     float64   // current available tokens
	lastRefill time.Time // last time tokens were refilled
}

func newTokenBucket(rps, burstSize int, now time.Time) *tokenBucket {
	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}

	return &tokenBucket{
		rate:       float64(rps),
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		lastRefill: now,
	}
}

func (tb *tokenBucket) configure(rps, burstSize int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}

	tb.rate = float64(rps)
	tb.capacity = float64(burstSize)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

func (tb *tokenBucket) take(now time.Time) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)

	d := Decision{Limit: int(tb.capacity)}
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		d.Allowed = true
	}
	d.Remaining = int(tb.tokens)

	missing := tb.capacity - tb.tokens
	d.Reset = now.Add(time.Duration(missing / tb.rate * float64(time.Second)))
	return d
}

// idle reports whether the bucket would be full again at now.
func (tb *tokenBucket) idle(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	refillTime := time.Duration((tb.capacity - tb.tokens) / tb.rate * float64(time.Second))
	return now.Sub(tb.lastRefill) >= refillTime
}

func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// WriteRateLimitHeaders adds rate limit status headers to the response.
func WriteRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}
