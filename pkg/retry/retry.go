package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "thingmirror/pkg/errors"
	"thingmirror/pkg/logger"
)

// DefaultMaxAttempts is the number of attempts a unit of work gets before its
// failure becomes terminal.
const DefaultMaxAttempts = 3

// Operation is a function that performs an operation that might need retrying.
// attempt starts at 1.
type Operation func(attempt int) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(attempt int) (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts; values below 1 mean 1
	MaxAttempts int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns three immediate attempts with no delay between them.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     NoBackoff{},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// WithContext returns a copy of the config bound to ctx.
func (c *Config) WithContext(ctx context.Context) *Config {
	clone := *c
	clone.Context = ctx
	return &clone
}

// DefaultRetryIf retries every error except context cancellation.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// APIRetryIf is a stricter predicate that also refuses typed API errors that
// will not change on a second attempt (auth, not found, parsing).
func APIRetryIf(err error) bool {
	if !DefaultRetryIf(err) {
		return false
	}
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}
	return true
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NoBackoff{}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := op(attempt)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"attempt": attempt,
					"error":   err.Error(),
				})
			}
			return err
		}

		if attempt >= maxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry attempts exhausted", map[string]interface{}{
					"attempts":   attempt,
					"last_error": err.Error(),
				})
			}
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.InfoWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": maxAttempts,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func(attempt int) error {
		var opErr error
		result, opErr = op(attempt)
		return opErr
	}, cfg)
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
