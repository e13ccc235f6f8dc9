// Package resilience provides the failure-handling primitives shared by the
// pipeline stages: bounded retry with exponential backoff and jitter, a
// per-dependency circuit breaker, and a token-bucket rate limiter.
//
// Breaker and limiter instances guard a shared downstream service, so they
// are created once per dependency (one for the vision model, one for the
// speech synthesizer) and never per job.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/faults"
)

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget including the first call.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt; each subsequent
	// delay doubles, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Zero means 30s.
	MaxDelay time.Duration
	// RetryIf decides whether an error is worth another attempt.
	// Nil means faults.Retryable.
	RetryIf func(error) bool
	// Name labels the operation in logs.
	Name string
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.RetryIf == nil {
		c.RetryIf = faults.Retryable
	}
	return c
}

// Retry invokes op until it succeeds, the attempt budget is exhausted, the
// error is judged non-retryable, or ctx is done. Backoff between attempts is
// exponential with full jitter; the sleep is abortable by ctx.
//
// When the budget runs out, the last error is returned unchanged so that the
// caller's classification (dependency, validation, ...) survives.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return faults.Wrap(faults.CodeCancelled, err, "%s aborted before attempt %d", cfg.Name, attempt)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.RetryIf(lastErr) {
			log.Debug().Str("op", cfg.Name).Int("attempt", attempt).Err(lastErr).Msg("Error is not retryable, giving up")
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(cfg.BaseDelay, cfg.MaxDelay, attempt)
		log.Warn().
			Str("op", cfg.Name).
			Int("attempt", attempt).
			Int("maxAttempts", cfg.MaxAttempts).
			Dur("backoff", delay).
			Err(lastErr).
			Msg("Transient failure, retrying after backoff")

		select {
		case <-ctx.Done():
			return faults.Wrap(faults.CodeCancelled, ctx.Err(), "%s aborted during backoff", cfg.Name)
		case <-time.After(delay):
		}
	}

	log.Error().Str("op", cfg.Name).Int("attempts", cfg.MaxAttempts).Err(lastErr).Msg("Retry budget exhausted")
	return lastErr
}

// backoffDelay computes the exponential delay for the given 1-based attempt
// with full jitter: a uniform random duration in (0, base*2^(attempt-1)].
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	ceil := base
	for i := 1; i < attempt; i++ {
		ceil *= 2
		if ceil >= max {
			ceil = max
			break
		}
	}
	if ceil <= 0 {
		return base
	}
	return time.Duration(rand.Int63n(int64(ceil))) + 1
}
