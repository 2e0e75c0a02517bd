// Package ratelimit provides client-side pacing for outbound mail provider calls.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// tokenScale stores tokens in thousandths so fractional per-second rates
// refill without drift.
const tokenScale = 1000

// =============================================================================
// Token Bucket
// =============================================================================

// TokenBucket implements lock-free token bucket rate limiting using atomic
// operations. A bucket created with rate r sustains r requests per second and
// absorbs bursts up to its burst capacity.
type TokenBucket struct {
	tokens       int64 // atomic, scaled by tokenScale
	maxTokens    int64 // atomic
	refillRate   int64 // atomic, scaled tokens per interval
	intervalNs   int64 // refill interval in nanoseconds (atomic)
	lastRefillNs int64 // atomic (UnixNano)
}

// NewTokenBucket creates a bucket that refills ratePerSecond tokens every
// second and holds at most burst tokens. A burst below 1 is raised to 1.
// A rate at or below zero disables limiting entirely.
func NewTokenBucket(ratePerSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	max := int64(burst) * tokenScale
	return &TokenBucket{
		tokens:       max,
		maxTokens:    max,
		refillRate:   int64(ratePerSecond * tokenScale),
		intervalNs:   int64(time.Second),
		lastRefillNs: time.Now().UnixNano(),
	}
}

// Allow checks if a request is allowed using atomic operations (lock-free).
func (b *TokenBucket) Allow() bool {
	if atomic.LoadInt64(&b.refillRate) <= 0 {
		return true
	}

	now := time.Now().UnixNano()
	intervalNs := atomic.LoadInt64(&b.intervalNs)
	lastRefill := atomic.LoadInt64(&b.lastRefillNs)

	// Try to refill tokens proportionally to elapsed time.
	elapsed := now - lastRefill
	if elapsed > 0 {
		refillRate := atomic.LoadInt64(&b.refillRate)
		maxTokens := atomic.LoadInt64(&b.maxTokens)
		tokensToAdd := elapsed * refillRate / intervalNs

		// Only advance lastRefill when at least one scaled token accrued,
		// otherwise sub-token elapsed time would be discarded.
		if tokensToAdd > 0 && atomic.CompareAndSwapInt64(&b.lastRefillNs, lastRefill, now) {
			for {
				current := atomic.LoadInt64(&b.tokens)
				newTokens := current + tokensToAdd
				if newTokens > maxTokens {
					newTokens = maxTokens
				}
				if atomic.CompareAndSwapInt64(&b.tokens, current, newTokens) {
					break
				}
			}
		}
	}

	// Try to consume a token.
	for {
		current := atomic.LoadInt64(&b.tokens)
		if current < tokenScale {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.tokens, current, current-tokenScale) {
			return true
		}
	}
}

// Wait blocks until a token is available or the context is done.
func (b *TokenBucket) Wait(ctx context.Context) error {
	if b.Allow() {
		return nil
	}

	retry := b.retryInterval()
	timer := time.NewTimer(retry)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if b.Allow() {
				return nil
			}
			timer.Reset(retry)
		}
	}
}

// retryInterval is the expected time for one token to accrue, clamped so Wait
// stays responsive at very low rates and avoids spinning at very high ones.
func (b *TokenBucket) retryInterval() time.Duration {
	rate := atomic.LoadInt64(&b.refillRate)
	if rate <= 0 {
		return time.Millisecond
	}
	interval := time.Duration(atomic.LoadInt64(&b.intervalNs)) * tokenScale / time.Duration(rate)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	if interval > 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}

// SetRate updates the sustained rate atomically. Burst capacity is unchanged.
func (b *TokenBucket) SetRate(ratePerSecond float64) {
	atomic.StoreInt64(&b.refillRate, int64(ratePerSecond*tokenScale))
}

// Tokens reports whole tokens currently available.
func (b *TokenBucket) Tokens() int {
	return int(atomic.LoadInt64(&b.tokens) / tokenScale)
}
