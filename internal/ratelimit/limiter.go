// Package ratelimit provides distributed admission control for calls to
// rate-limited external APIs. Both limiter shapes share the same backing
// key-value store, so independent worker processes coordinate through it.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/devforge-dev/devforge/internal/cache"
)

// ErrRateLimited is the sentinel matched by errors.Is for both limiter shapes.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError reports a refused admission along with a suggested wait before
// the next attempt.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// bucketTTL bounds storage growth for inactive token buckets.
const bucketTTL = time.Hour

// Limiter implements a fixed-window counter and a token bucket over a shared
// store. Safe for concurrent use across processes.
type Limiter struct {
	cache cache.Cache
	now   func() time.Time
}

func New(c cache.Cache) *Limiter {
	return &Limiter{cache: c, now: time.Now}
}

// WithClock overrides the limiter's clock. Used by tests to simulate refill.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CheckWindow admits at most limit calls per window for key. The increment
// and expiry refresh are applied as one pipelined transaction, so concurrent
// callers cannot observe a reset between the two. Over the limit it fails
// with a LimitError carrying the window's remaining TTL.
func (l *Limiter) CheckWindow(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.cache.IncrWithExpiry(ctx, cache.RateWindowKey(key), window)
	if err != nil {
		return fmt.Errorf("increment window counter: %w", err)
	}
	if count <= int64(limit) {
		return nil
	}

	retryAfter, err := l.cache.TTL(ctx, cache.RateWindowKey(key))
	if err != nil || retryAfter <= 0 {
		retryAfter = window
	}
	return &LimitError{RetryAfter: retryAfter}
}

// ConsumeToken takes one token from the bucket for key, refilling
// elapsed*refillRatePerSecond tokens (capped at capacity) since the last
// consumption. A bucket that cannot cover a whole token fails with a
// LimitError estimating the wait until the next token accrues. Bucket state
// is persisted with a bounded TTL so inactive keys age out.
func (l *Limiter) ConsumeToken(ctx context.Context, key string, capacity float64, refillRatePerSecond float64) error {
	bucketKey := cache.TokenBucketKey(key)
	now := l.now()

	state, err := l.cache.HGetAll(ctx, bucketKey)
	if err != nil {
		return fmt.Errorf("read token bucket: %w", err)
	}

	tokens := capacity
	lastRefill := now
	if v, ok := state["tokens"]; ok {
		if parsed, perr := strconv.ParseFloat(v, 64); perr == nil {
			tokens = parsed
		}
	}
	if v, ok := state["ts"]; ok {
		if parsed, perr := strconv.ParseFloat(v, 64); perr == nil {
			lastRefill = time.Unix(0, int64(parsed*float64(time.Second)))
		}
	}

	elapsed := now.Sub(lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens = math.Min(capacity, tokens+elapsed*refillRatePerSecond)

	if tokens < 1.0 {
		rate := math.Max(refillRatePerSecond, 0.0001)
		wait := time.Duration(math.Ceil((1.0-tokens)/rate)) * time.Second
		return &LimitError{RetryAfter: wait}
	}

	tokens -= 1.0
	fields := map[string]string{
		"tokens": strconv.FormatFloat(tokens, 'f', -1, 64),
		"ts":     strconv.FormatFloat(float64(now.UnixNano())/float64(time.Second), 'f', -1, 64),
	}
	if err := l.cache.HSetWithExpiry(ctx, bucketKey, fields, bucketTTL); err != nil {
		return fmt.Errorf("persist token bucket: %w", err)
	}
	return nil
}
