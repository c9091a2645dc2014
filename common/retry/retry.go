// Package retry runs an operation with exponential backoff between
// attempts.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3}, func() error {
//	    return client.Call()
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts counts every attempt, including the first. Values
	// below 1 mean a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; each later
	// wait doubles, capped at MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
	// ShouldRetry classifies errors as retryable. When nil every
	// non-nil error is retried.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits short network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Do calls fn until it succeeds, the attempts run out, or ctx is
// cancelled. The last attempt's error is returned; a cancellation is
// joined onto it.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		slog.Debug("retry: attempt failed",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"err", lastErr, "delay", delay)

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
