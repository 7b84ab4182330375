package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig shapes an exponential backoff schedule.
type RetryConfig struct {
	// MaxRetries counts attempts after the initial one.
	MaxRetries int
	// InitialDelay precedes the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the grown delay.
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
	// Jitter randomizes each delay between half and full of nominal.
	Jitter bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// LLMRetryConfig is tuned for rate-limited LLM calls: 2s, 4s, 8s.
func LLMRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn until it succeeds, the attempts are spent, or ctx is
// cancelled. Every error is treated as worth retrying; use
// RetryIfRetryable when only transient failures should burn attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	}, everyError)
	return err
}

// RetryWithResult is Retry for functions that produce a value. The
// zero value is returned alongside any error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	return retry(ctx, cfg, fn, everyError)
}

// RetryIfRetryable retries fn only while it keeps failing with
// retryable errors; anything else is returned immediately.
func RetryIfRetryable(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	}, IsRetryable)
	return err
}

func everyError(error) bool { return true }

// retry is the single backoff loop behind the exported variants.
func retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error), retryable func(error) bool) (T, error) {
	var zero T
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}

		if err := sleep(ctx, cfg.backoff(delay)); err != nil {
			return zero, err
		}
		delay = cfg.next(delay)
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// backoff applies jitter to one delay without advancing the schedule.
func (cfg RetryConfig) backoff(delay time.Duration) time.Duration {
	if !cfg.Jitter {
		return delay
	}
	return time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
}

// next grows the delay for the following attempt, capped at MaxDelay.
func (cfg RetryConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * cfg.Multiplier)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
