package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/JonMunkholm/fleximart-etl/internal/logging"
)

// RetryConfig is the bounded retry policy for storage calls.
type RetryConfig struct {
	MaxAttempts  int // total tries, first one included
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether an error is transient. Defaults to
	// KindOf(err) == KindStorageUnavailable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableFunc is an operation that can be retried.
type RetryableFunc func(ctx context.Context) error

// Retry runs fn until it succeeds, fails with a non-transient error, the
// attempts are exhausted or ctx is done. Exhaustion returns a
// KindStorageUnavailable error wrapping the last failure.
func Retry(ctx context.Context, cfg RetryConfig, fn RetryableFunc) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return KindOf(err) == KindStorageUnavailable }
	}
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := backoff(attempt, cfg)
		logging.FromContext(ctx).Warn("transient storage error, retrying",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"next_retry_in", delay.String(),
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return &Error{
		Kind: KindStorageUnavailable,
		Err:  fmt.Errorf("failed after %d attempts: %w", attempts, lastErr),
	}
}

// backoff is InitialDelay * Multiplier^attempt, capped at MaxDelay.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
