// Package retry runs fragile backend calls a bounded number of times with
// exponentially growing pauses in between. Only transient errors
// (connection failures and generic backend faults) are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/logger"
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures one retry loop
type Policy struct {
	// Name identifies the call site in log output
	Name string

	// Attempts is the total number of calls, including the first one
	Attempts int

	// Delay is the pause after the first failure
	Delay time.Duration

	// Backoff multiplies the pause after every further failure
	Backoff float64

	// Sleep defaults to a context aware timer
	Sleep SleepFunc
}

// Presets matching the call sites of the transfer engine
var (
	Describe  = Policy{Name: "describe", Attempts: 5, Delay: 10 * time.Second, Backoff: 2}
	ChunkCopy = Policy{Name: "chunk-copy", Attempts: 10, Delay: 10 * time.Second, Backoff: 2}
	Concat    = Policy{Name: "concat", Attempts: 5, Delay: 10 * time.Second, Backoff: 2}
)

// ExhaustedError is returned when every attempt failed with a transient error
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

// Unwrap exposes the last underlying error so errors.Is keeps matching
// the backend kind that caused the failure
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came out of a retry loop that gave up
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// DelayFor returns the pause taken after the given failed attempt (1-based)
func (p Policy) DelayFor(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(backoff, float64(attempt-1)))
}

// WithSleep returns a copy of p using the given sleep function
func (p Policy) WithSleep(sleep SleepFunc) Policy {
	p.Sleep = sleep
	return p
}

// Do calls fn until it succeeds, fails with a non-transient error, or the
// attempt budget is spent
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that produce a result
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = contextSleep
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !domain.IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := p.DelayFor(attempt)
		logger.Get().Warn("retrying after transient failure",
			"call", p.Name,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Name: p.Name, Attempts: attempts, Err: lastErr}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
