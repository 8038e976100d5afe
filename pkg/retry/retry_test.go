package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "thingmirror/pkg/errors"
	"thingmirror/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0, // No jitter for predictable testing
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			assert.Equal(t, test.expected, backoff.NextDelay(test.attempt))
		})
	}
}

func TestParseBackoff(t *testing.T) {
	b, err := ParseBackoff("")
	require.NoError(t, err)
	assert.Equal(t, NoBackoff{}, b)

	b, err = ParseBackoff("Exponential")
	require.NoError(t, err)
	assert.IsType(t, &ExponentialBackoff{}, b)

	b, err = ParseBackoff("constant")
	require.NoError(t, err)
	assert.Equal(t, time.Second, b.NextDelay(1))

	_, err = ParseBackoff("fibonacci")
	assert.Error(t, err)
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	var seen []int
	result, err := DoWithResult(func(attempt int) (string, error) {
		seen = append(seen, attempt)
		if attempt < 3 {
			return "", errors.New("temporary error")
		}
		return "mirrored", nil
	}, &Config{MaxAttempts: 3})

	require.NoError(t, err)
	assert.Equal(t, "mirrored", result)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	errFirst := errors.New("attempt 1")
	errSecond := errors.New("attempt 2")
	errThird := errors.New("attempt 3")
	byAttempt := map[int]error{1: errFirst, 2: errSecond, 3: errThird}

	calls := 0
	err := Do(func(attempt int) error {
		calls++
		return byAttempt[attempt]
	}, &Config{MaxAttempts: 3})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errThird)
	assert.NotErrorIs(t, err, errSecond)
}

func TestRetryIsImmediateByDefault(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = Do(func(attempt int) error {
		calls++
		return errors.New("always")
	}, DefaultConfig())

	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRetryMaxAttemptsBelowOne(t *testing.T) {
	calls := 0
	err := Do(func(attempt int) error {
		calls++
		return errors.New("nope")
	}, &Config{MaxAttempts: 0})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithNonRetryableError(t *testing.T) {
	attempts := 0
	authError := &errs.Error{
		Type:    errs.ErrorTypeAuth,
		Message: "invalid token",
		Code:    401,
	}

	err := Do(func(attempt int) error {
		attempts++
		return authError
	}, &Config{MaxAttempts: 5, RetryIf: APIRetryIf})

	assert.Equal(t, authError, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryDoesNotRetryCancellation(t *testing.T) {
	attempts := 0
	err := Do(func(attempt int) error {
		attempts++
		return context.Canceled
	}, &Config{MaxAttempts: 3})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(func(attempt int) error {
		attempts++
		if attempt == 2 {
			cancel()
		}
		return errors.New("temporary error")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: 10 * time.Millisecond},
		Context:     ctx,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryOnRetryCallbackAndLogging(t *testing.T) {
	log := logger.NewTestLogger()
	var retried []int

	err := Do(func(attempt int) error {
		if attempt == 1 {
			return errors.New("flaky")
		}
		return nil
	}, &Config{
		MaxAttempts: 3,
		Logger:      log,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
			assert.Zero(t, delay)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, retried)
	assert.True(t, log.HasMessage("retrying operation"))
	assert.True(t, log.HasMessage("operation succeeded after retry"))
}

func TestWaitHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Wait(context.Background(), 0))
}
