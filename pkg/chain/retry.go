package chain

import (
	"context"
	"time"
)

// Retry runs fn with bounded exponential backoff under a constant base
// interval. A non-retryable error (per the predicate) or context
// cancellation aborts immediately; the last error is returned once the
// attempts are exhausted.
func Retry(ctx context.Context, attempts int, base time.Duration, retryable func(error) bool, fn func() error) error {
	var err error
	delay := base
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
