// Package retry provides a bounded retry-with-backoff helper.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Do invokes fn up to attempts times. After each failure it waits
// base<<attempt (exponential backoff) before trying again, honoring ctx
// cancellation during the wait. The first success returns nil; once the
// attempts are exhausted the last error is returned wrapped.
func Do(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := fn(); err != nil {
			lastErr = err
			if i == attempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(base << uint(i)):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
