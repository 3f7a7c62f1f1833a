// Package retry wraps fallible operations with a bounded, fixed-delay retry loop.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/metrics"
)

// Defaults applied when a Caller field is left zero.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Caller retries an operation up to MaxAttempts times, waiting Delay between attempts.
// Every error is treated the same way.
type Caller struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       Sleeper
	Logger      *zap.Logger
}

// New builds a Caller with the given bounds. Non-positive attempts fall back to the default.
func New(maxAttempts int, delay time.Duration, logger *zap.Logger) *Caller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Sleep:       SleepContext,
		Logger:      logger,
	}
}

// Run invokes fn until it succeeds or the attempts are exhausted.
// The returned error wraps the last failure.
func (c *Caller) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	_, err := Do(ctx, c, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do invokes fn through c and returns its value on the first success.
func Do[T any](ctx context.Context, c *Caller, operation string, fn func(context.Context) (T, error)) (T, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		logger.Warn("operation failed",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		metrics.ObserveRetry(operation)
		if serr := sleep(ctx, c.Delay); serr != nil {
			return zero, fmt.Errorf("%s: wait before retry: %w", operation, serr)
		}
	}
	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", operation, attempts, lastErr)
}

// SleepContext blocks for d, returning early with ctx.Err() if ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
