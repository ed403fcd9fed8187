package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig tunes [Retry].
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries uint64

	// BaseDelay is the first backoff interval; later intervals double.
	// Default: 200ms.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff interval. Default: 5s.
	MaxDelay time.Duration

	// Jitter adds up to ±Jitter to each interval. Zero disables jitter.
	Jitter time.Duration

	// Retryable reports whether err is transient. A nil Retryable treats
	// every error except context cancellation and [ErrCircuitOpen] as
	// transient.
	Retryable func(err error) bool
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. The last error is returned unwrapped.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = isTransient
	}

	b := retry.NewExponential(cfg.BaseDelay)
	b = retry.WithCappedDuration(cfg.MaxDelay, b)
	if cfg.Jitter > 0 {
		b = retry.WithJitter(cfg.Jitter, b)
	}
	b = retry.WithMaxRetries(cfg.MaxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrCircuitOpen)
}
