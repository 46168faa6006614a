package resilience

import (
	"context"
	"time"
)

// Retrier implements a bounded retry policy with exponential backoff for
// transport-level failures. It is the only retry layer in the system; the
// orchestrator treats errors that survive it as terminal.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetrier creates a retrier that runs an operation up to maxAttempts
// times, doubling the delay between attempts starting from baseDelay.
func NewRetrier(maxAttempts int, baseDelay time.Duration) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempt budget, or the context is cancelled. fn reports whether its error
// is worth retrying (e.g. 5xx or a dropped connection, but not 4xx).
func (r *Retrier) Do(ctx context.Context, fn func() (retryable bool, err error)) error {
	delay := r.baseDelay

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return lastErr
}
