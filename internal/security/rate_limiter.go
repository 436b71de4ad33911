package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/snapvault/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client so a single uploader cannot
// monopolise the pipeline
type RateLimiter struct {
	enabled bool
	limit   rate.Limit
	burst   int
	buckets map[string]*clientBucket
	mu      sync.RWMutex
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a limiter from the rate_limit config section
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMin
	}
	return &RateLimiter{
		enabled: cfg.Enabled,
		limit:   rate.Limit(float64(perMin) / 60.0),
		burst:   burst,
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Allow reports whether a request from clientID may proceed
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.enabled {
		return true
	}

	bucket := r.getBucket(clientID)
	now := r.now()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// Tokens returns how many requests clientID could make right now
func (r *RateLimiter) Tokens(clientID string) float64 {
	r.mu.RLock()
	bucket, exists := r.buckets[clientID]
	r.mu.RUnlock()

	if !exists {
		return float64(r.burst)
	}
	return bucket.limiter.TokensAt(r.now())
}

func (r *RateLimiter) getBucket(clientID string) *clientBucket {
	r.mu.RLock()
	bucket, exists := r.buckets[clientID]
	r.mu.RUnlock()

	if exists {
		return bucket
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if bucket, exists := r.buckets[clientID]; exists {
		return bucket
	}

	bucket = &clientBucket{
		limiter:  rate.NewLimiter(r.limit, r.burst),
		lastSeen: r.now(),
	}
	r.buckets[clientID] = bucket
	return bucket
}

// CleanupOldBuckets drops buckets idle for longer than maxIdle and returns
// how many were removed
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for id, bucket := range r.buckets {
		bucket.mu.Lock()
		if bucket.lastSeen.Before(cutoff) {
			delete(r.buckets, id)
			removed++
		}
		bucket.mu.Unlock()
	}
	return removed
}

// StartCleanupRoutine prunes idle buckets until ctx is cancelled
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}
