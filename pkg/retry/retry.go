// Package retry implements the retry executor: None, Fixed, and
// ExponentialBackoff strategies, each gated by the error-kind
// classification in pkg/errorkind so only transient failures are retried.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// Executor runs a function under a retry strategy.
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// None never retries; fn runs exactly once.
type None struct{}

func (None) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Fixed retries up to maxAttempts times (the first call plus maxAttempts-1
// retries) with a constant delay between attempts.
type Fixed struct {
	Delay       time.Duration
	MaxAttempts int
}

func (f Fixed) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := f.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errorkind.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			return lastErr
		}
		if err := sleep(ctx, f.Delay); err != nil {
			return err
		}
	}
	return lastErr
}

// ExponentialBackoff retries with base/cap/jitter-bounded exponential
// delays. The reference default is base 100ms, cap 1s, jitter 10%, and 3
// max retries, giving nominal sleeps of approximately 100, 200, 400ms each
// +-10%.
type ExponentialBackoff struct {
	Base       time.Duration
	Cap        time.Duration
	Jitter     float64
	MaxRetries int
}

func (e ExponentialBackoff) withDefaults() ExponentialBackoff {
	if e.Base <= 0 {
		e.Base = 100 * time.Millisecond
	}
	if e.Cap <= 0 {
		e.Cap = time.Second
	}
	if e.Jitter <= 0 {
		e.Jitter = 0.1
	}
	if e.MaxRetries <= 0 {
		e.MaxRetries = 3
	}
	return e
}

// Execute invokes fn at most MaxRetries+1 times total for an error that
// stays retryable; a non-retryable error stops the loop on the first
// attempt.
func (e ExponentialBackoff) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cfg := e.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errorkind.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			return lastErr
		}
		if err := sleep(ctx, cfg.nextDelay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// nextDelay computes the delay before the (attempt+1)-th retry, 0-indexed
// by completed attempt count.
func (e ExponentialBackoff) nextDelay(attempt int) time.Duration {
	delay := float64(e.Base) * math.Pow(2, float64(attempt))
	if delay > float64(e.Cap) {
		delay = float64(e.Cap)
	}
	jitter := delay * e.Jitter * (rand.Float64()*2 - 1)
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
