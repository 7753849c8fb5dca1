package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimitedRate stands in for rate.Inf, which has edge cases with burst 0.
const unlimitedRate = 1_000_000_000

// DefaultIdleTimeout is how long an owner's bucket is kept after its last use.
const DefaultIdleTimeout = 10 * time.Minute

// RateLimiter provides per-owner request rate limiting using the token bucket
// algorithm.
//
// Each owner gets an independent bucket from golang.org/x/time/rate, so one
// busy owner cannot exhaust another's allowance:
//  1. Tokens are added to each bucket at a constant rate (requests per second)
//  2. Each request consumes one token from its owner's bucket
//  3. If the bucket is empty, the request is either rejected or waits for a token
//  4. Burst capacity allows temporary spikes above the sustained rate
//
// Buckets idle for longer than the idle timeout are dropped the next time a
// sweep runs, bounding memory for long-lived processes with many owners.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int

	idleTimeout time.Duration
	lastSweep   time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	// now is the clock; tests replace it.
	now func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a new RateLimiter with the specified per-owner rate and burst.
//
// Parameters:
//   - requestsPerSecond: Maximum sustained rate per owner
//   - burst: Maximum burst size per owner (bucket capacity in tokens)
//
// Special cases:
//   - requestsPerSecond = 0: No rate limiting (unlimited)
//   - burst = 0: No burst allowed (only sustained rate)
//
// Example:
//
//	// Allow each owner 100 req/s sustained, 200 req/s burst
//	limiter := New(100, 200)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimitedRate
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limit:       rate.Limit(requestsPerSecond),
		burst:       int(burst),
		idleTimeout: DefaultIdleTimeout,
		buckets:     make(map[string]*bucket),
		now:         time.Now,
	}
}

// SetIdleTimeout changes how long idle owner buckets are retained.
func (r *RateLimiter) SetIdleTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idleTimeout = d
}

// limiterFor returns the bucket for owner, creating it on first use.
func (r *RateLimiter) limiterFor(owner string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	b, ok := r.buckets[owner]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[owner] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweepLocked drops idle buckets at most once per idle timeout.
func (r *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < r.idleTimeout {
		return
	}
	r.lastSweep = now

	for owner, b := range r.buckets {
		if now.Sub(b.lastSeen) >= r.idleTimeout {
			delete(r.buckets, owner)
		}
	}
}

// Allow checks if a request from owner is allowed under the current rate limit.
//
// This is the fast path for rate limiting - it returns immediately without waiting.
//
// Returns:
//   - true if the request is allowed (token consumed)
//   - false if the request should be rejected (no tokens available)
//
// Example:
//
//	if !limiter.Allow(ownerID) {
//	    return service.ErrRateLimited
//	}
func (r *RateLimiter) Allow(owner string) bool {
	return r.limiterFor(owner).AllowN(r.now(), 1)
}

// Wait blocks until a token is available for owner or the context is cancelled.
//
// Returns:
//   - nil if a token was acquired
//   - context error if the context was cancelled before a token was available,
//     or if the wait would certainly outlast the context deadline
func (r *RateLimiter) Wait(ctx context.Context, owner string) error {
	return r.limiterFor(owner).Wait(ctx)
}

// Tokens returns the number of tokens currently available to owner.
//
// This is primarily useful for monitoring and debugging. An owner that has
// not been seen yet reports a full bucket.
func (r *RateLimiter) Tokens(owner string) float64 {
	r.mu.Lock()
	b, ok := r.buckets[owner]
	r.mu.Unlock()

	if !ok {
		return float64(r.burst)
	}
	return b.limiter.TokensAt(r.now())
}

// Owners returns the number of owners with a live bucket.
func (r *RateLimiter) Owners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
