package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/fpang/video-narrator/internal/faults"
)

// RateLimiter is a token-bucket gate for cost-sensitive external calls.
// It wraps golang.org/x/time/rate so callers only see Wait; the AllowAt
// hook exposes the bucket at an explicit instant for clock-free tests.
type RateLimiter struct {
	l *rate.Limiter
}

// NewRateLimiter builds a limiter that releases one token per interval with
// the given burst capacity. A burst of 1 serializes calls at the interval.
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{l: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.l.Wait(ctx); err != nil {
		return faults.Wrap(faults.CodeCancelled, err, "rate limiter wait aborted")
	}
	return nil
}

// AllowAt reports whether a call would be admitted at instant t, consuming
// a token if so. Used by tests to exercise the bucket without sleeping.
func (r *RateLimiter) AllowAt(t time.Time) bool {
	return r.l.AllowN(t, 1)
}
