package resilience

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(config map[string]RateLimitConfig) (*RateLimiter, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(config)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiterUnconfiguredRouteIsUnlimited(t *testing.T) {
	rl, _ := newTestLimiter(nil)
	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow("vote", "alice").Allowed)
	}
}

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl, now := newTestLimiter(map[string]RateLimitConfig{
		"vote": {RequestsPerSecond: 1, BurstSize: 2},
	})

	assert.True(t, rl.Allow("vote", "alice").Allowed)
	d := rl.Allow("vote", "alice")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.False(t, rl.Allow("vote", "alice").Allowed)

	// Other callers have their own bucket.
	assert.True(t, rl.Allow("vote", "bob").Allowed)

	*now = now.Add(time.Second)
	assert.True(t, rl.Allow("vote", "alice").Allowed)
	assert.False(t, rl.Allow("vote", "alice").Allowed)
}

func TestRateLimiterConfigureDropsRemovedRoutes(t *testing.T) {
	rl, _ := newTestLimiter(map[string]RateLimitConfig{
		"vote": {RequestsPerSecond: 1, BurstSize: 1},
	})
	assert.True(t, rl.Allow("vote", "alice").Allowed)
	assert.False(t, rl.Allow("vote", "alice").Allowed)

	rl.Configure(map[string]RateLimitConfig{})
	assert.True(t, rl.Allow("vote", "alice").Allowed)
	assert.Empty(t, rl.buckets)
}

func TestRateLimiterEvictsRefilledBuckets(t *testing.T) {
	rl, now := newTestLimiter(map[string]RateLimitConfig{
		"vote": {RequestsPerSecond: 1, BurstSize: 2},
		"slow": {RequestsPerSecond: 1, BurstSize: 100},
	})

	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow("vote", "alice").Allowed)
	}
	assert.True(t, rl.Allow("vote", "bob").Allowed)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("slow", "dave").Allowed)
	}
	assert.False(t, rl.Allow("slow", "dave").Allowed)
	assert.Equal(t, 3, rl.Len())

	*now = now.Add(sweepInterval + time.Second)
	assert.True(t, rl.Allow("vote", "carol").Allowed)

	// alice and bob refilled long ago; dave still owes tokens.
	assert.Equal(t, 2, rl.Len())
	_, kept := rl.buckets[bucketKey{route: "slow", subject: "dave"}]
	assert.True(t, kept)
	assert.Equal(t, 60, rl.Allow("slow", "dave").Remaining)
}

func TestWriteRateLimitHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimitHeaders(rec, Decision{Limit: 5, Remaining: 3, Reset: time.Unix(1_700_000_010, 0)})

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000010", rec.Header().Get("X-RateLimit-Reset"))
}
