// Package retry runs an operation under a bounded exponential backoff
// policy. The policy is a plain value so its schedule can be inspected
// without doing any I/O.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy describes how many attempts to make and how long to wait between
// them. Attempts counts the first call.
type Policy struct {
	Attempts   int
	BaseDelay  time.Duration
	Multiplier float64
	Retryable  func(error) bool
}

// Default returns 3 attempts with 300ms and 900ms waits. Nothing is
// retryable until Retryable is set.
func Default() Policy {
	return Policy{
		Attempts:   3,
		BaseDelay:  300 * time.Millisecond,
		Multiplier: 3,
	}
}

// Delay returns the wait after the attempt with the given zero-based index.
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
}

// Schedule lists every wait the policy can produce, in order.
func (p Policy) Schedule() []time.Duration {
	if p.Attempts <= 1 {
		return nil
	}
	out := make([]time.Duration, p.Attempts-1)
	for i := range out {
		out[i] = p.Delay(i)
	}
	return out
}

func (p Policy) shouldRetry(err error) bool {
	return p.Retryable != nil && p.Retryable(err)
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. ctx is checked before every attempt and
// interrupts the wait between attempts; in both cases ctx.Err() is
// returned regardless of the remaining budget.
func Do(ctx context.Context, p Policy, sleep Sleeper, fn func(ctx context.Context, attempt int) error) error {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.shouldRetry(lastErr) || attempt == attempts-1 {
			return lastErr
		}

		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}
