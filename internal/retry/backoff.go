// Package retry re-runs WaifuVault calls that failed in transport.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 200 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// Policy controls retry behavior.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	// If zero or negative, DefaultAttempts is used.
	Attempts int

	// BaseDelay is the starting delay, doubled on every retry.
	// If zero, DefaultBaseDelay is used.
	BaseDelay time.Duration

	// MaxDelay caps every wait, Retry-After advice included.
	// If zero, DefaultMaxDelay is used.
	MaxDelay time.Duration

	// ShouldRetry decides whether an error is worth another try.
	// If nil, Transient is used.
	ShouldRetry func(error) bool

	// OnRetry, if set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleeper allows tests to replace the context-aware timer.
	Sleeper func(ctx context.Context, d time.Duration) error
}

// NewPolicy returns a Policy using the exponential schedule with the given
// attempts and base delay.
func NewPolicy(attempts int, baseDelay time.Duration) Policy {
	return Policy{Attempts: attempts, BaseDelay: baseDelay}
}

// Transient reports whether err is a transport failure that may succeed on
// another try: no response at all, 429, or any 5xx without a service envelope.
// Build, protocol and service errors are never transient.
func Transient(err error) bool {
	var te *waifuvault.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == 0 ||
		te.StatusCode == http.StatusTooManyRequests ||
		te.StatusCode >= http.StatusInternalServerError
}

// Delay returns how long to wait after the given failed attempt. A
// Retry-After advice carried by a transport error wins over the schedule.
// The result never exceeds MaxDelay.
func (p Policy) Delay(attempt int, err error) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}

	var te *waifuvault.TransportError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return min(te.RetryAfter, limit)
	}

	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if attempt >= 62 {
		return limit
	}
	d := base * time.Duration(1<<attempt)
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

// Do executes op until it succeeds, returns an error that should not be
// retried, or the attempts are used up. The last error is returned. If ctx is
// canceled, the context error is returned immediately.
func Do(ctx context.Context, p Policy, op func(attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = Transient
	}

	sleep := p.Sleeper
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts-1 || !shouldRetry(err) {
			return lastErr
		}

		delay := p.Delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Value runs op under Do and returns its result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(int) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
