package util

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ShouldRetryFunc func(error) bool
}

// DefaultRetryConfig retries nothing until ShouldRetryFunc is set.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
	}
}

// Retry runs operation until it succeeds, returns an error ShouldRetryFunc
// rejects, or MaxRetries is exhausted. Delays grow exponentially with jitter.
func Retry(ctx context.Context, config RetryConfig, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}

			jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
			delay = delay + jitter

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.ShouldRetryFunc != nil && config.ShouldRetryFunc(err) {
			continue
		}
		return err
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", config.MaxRetries, lastErr)
}
