package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExhaustedError is returned by Do when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// OnRetry is invoked before sleeping ahead of retry n (1-based).
type OnRetry func(retry int, err error, delay time.Duration)

// Do runs fn until it succeeds, returns a permanent error, or the policy's
// attempts are used up. Waiting between attempts honors ctx cancellation.
func Do(ctx context.Context, p Policy, onRetry OnRetry, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if attempt == p.Attempts() {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, last, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, last)
		}
	}
	return &ExhaustedError{Attempts: p.Attempts(), Last: last}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
