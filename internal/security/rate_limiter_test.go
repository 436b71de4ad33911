package security

import (
	"testing"
	"time"

	"github.com/raaihank/snapvault/internal/config"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false, RequestsPerMin: 1, Burst: 1})
	for i := 0; i < 10; i++ {
		if !rl.Allow("client") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 3})
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d rejected within burst", i)
		}
	}
	if rl.Allow("a") {
		t.Fatal("request beyond burst allowed")
	}

	t.Run("clients are independent", func(t *testing.T) {
		if !rl.Allow("b") {
			t.Error("second client rejected")
		}
	})

	t.Run("refills over time", func(t *testing.T) {
		now = now.Add(time.Second)
		if !rl.Allow("a") {
			t.Error("expected one token after a second at 60/min")
		}
		if rl.Allow("a") {
			t.Error("expected bucket to be empty again")
		}
	})
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(2 * time.Hour)
	rl.Allow("fresh")

	if removed := rl.CleanupOldBuckets(time.Hour); removed != 1 {
		t.Fatalf("removed %d buckets, want 1", removed)
	}
	if got := rl.Tokens("old"); got != 1 {
		t.Errorf("Tokens for pruned client = %v, want full burst", got)
	}
}
