// rate_limiter.go - Rate limiting to prevent hitting Gemini API limits

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens         int
	maxTokens      int
	refillRate     time.Duration
	lastRefillTime time.Time
	mu             sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
// maxTokens: bucket capacity; refillRate: time between token refills.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

// Wait blocks until a token is available or the context is done. Chunk
// extraction fans out several calls at once, so waiters must stay
// cancelable - a timed-out scan should not keep queueing API calls.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// refill adds tokens based on elapsed time; caller must hold the lock
func (rl *RateLimiter) refill() {
	now := time.Now()
	tokensToAdd := int(now.Sub(rl.lastRefillTime) / rl.refillRate)
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefillTime = now
	}
}

// Global rate limiter for Gemini API.
// gemini-2.5-flash free tier: 10 RPM. Run at 8 tokens / 7s refill to keep a
// safety margin for the burst of concurrent chunk calls plus verification.
var globalRateLimiter = NewRateLimiter(8, 7*time.Second)

// WaitForRateLimit waits if we're hitting rate limits
func WaitForRateLimit(ctx context.Context) error {
	return globalRateLimiter.Wait(ctx)
}
