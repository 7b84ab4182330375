package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetryConfig keeps backoff in the microsecond range so tests run
// the full schedule without noticeable wall time.
func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_FirstTrySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_EventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return stderrors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	backendDown := stderrors.New("backend down")
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return backendDown
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial try plus three retries
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.True(t, stderrors.Is(err, backendDown))
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastRetryConfig()
	cfg.InitialDelay = time.Second

	calls := 0
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	err := Retry(ctx, cfg, func() error {
		calls++
		return stderrors.New("always failing")
	})

	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", stderrors.New("transient")
		}
		return "Article 12, Section 28", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Article 12, Section 28", got)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResult_ZeroValueOnFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		return 42, stderrors.New("never good")
	})

	require.Error(t, err)
	assert.Zero(t, got)
}

func TestRetryIfRetryable_PermanentErrorReturnsImmediately(t *testing.T) {
	calls := 0
	err := RetryIfRetryable(context.Background(), fastRetryConfig(), func() error {
		calls++
		return ValidationError("query must not be empty", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
	assert.NotContains(t, err.Error(), "failed after")
}

func TestRetryIfRetryable_RetriesRateLimits(t *testing.T) {
	calls := 0
	err := RetryIfRetryable(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return RateLimitError("429 from backend", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryIfRetryable_ExhaustedStillRetryable(t *testing.T) {
	calls := 0
	err := RetryIfRetryable(context.Background(), fastRetryConfig(), func() error {
		calls++
		return RateLimitError("429 from backend", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "failed after 3 retries")

	// The wrapped cause keeps its code visible to callers.
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrCodeLLMRateLimited, GetCode(err))
}

func TestLLMRetryConfig_Schedule(t *testing.T) {
	cfg := LLMRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialDelay)
	assert.Equal(t, 8*time.Second, cfg.MaxDelay)
}

func TestRetryConfig_DelayGrowthIsCapped(t *testing.T) {
	cfg := LLMRetryConfig()

	assert.Equal(t, 4*time.Second, cfg.next(2*time.Second))
	assert.Equal(t, 8*time.Second, cfg.next(4*time.Second))
	assert.Equal(t, 8*time.Second, cfg.next(8*time.Second))
}

func TestRetryConfig_JitterStaysInRange(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.Jitter = true

	nominal := 4 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := cfg.backoff(nominal)
		assert.GreaterOrEqual(t, d, nominal/2)
		assert.LessOrEqual(t, d, nominal)
	}

	cfg.Jitter = false
	assert.Equal(t, nominal, cfg.backoff(nominal))
}
