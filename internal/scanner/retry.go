package scanner

import (
	"context"
	"time"
)

// withRetry runs fn with exponential backoff. permanent, when non-nil, marks
// errors that retrying cannot fix (provider range rejections); those return
// immediately so the caller can handle them.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, permanent func(error) bool, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if permanent != nil && permanent(err) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
