package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls a retry loop.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // delay grows linearly with the attempt number
}

// WithRetry runs fn until it succeeds, attempts are exhausted, or the
// context is cancelled. The final error is wrapped with the attempt count.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if attempt == cfg.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, err)
			}

			delay := cfg.Delay
			if cfg.Backoff {
				delay = time.Duration(attempt) * cfg.Delay
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		return nil
	}
	return lastErr
}
