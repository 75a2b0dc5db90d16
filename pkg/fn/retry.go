package fn

import (
	"context"
	"math/rand"
	"time"
)

// Backoff selects how the wait between attempts grows.
type Backoff int

const (
	// BackoffExponential doubles the wait after every failed attempt.
	BackoffExponential Backoff = iota
	// BackoffLinear waits InitialWait*n after the n-th failed attempt.
	BackoffLinear
	// BackoffConstant always waits InitialWait.
	BackoffConstant
)

// RetryOpts configures Retry.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	// MaxWait caps a single wait. Zero means uncapped.
	MaxWait time.Duration
	Backoff Backoff
	Jitter  bool
	// OnAttempt, if set, is called after every attempt with its 1-based
	// number and the error it returned (nil on success).
	OnAttempt func(attempt int, err error)
}

// waitAfter returns the pause that follows failed attempt n (1-based).
func (o RetryOpts) waitAfter(n int) time.Duration {
	var d time.Duration
	switch o.Backoff {
	case BackoffLinear:
		d = o.InitialWait * time.Duration(n)
	case BackoffConstant:
		d = o.InitialWait
	default:
		d = o.InitialWait << (n - 1)
	}
	if o.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	if o.MaxWait > 0 && d > o.MaxWait {
		d = o.MaxWait
	}
	return d
}

// Retry calls f until it succeeds or MaxAttempts is reached, sleeping
// between attempts according to opts. The last failure is returned.
// A cancelled ctx stops the loop during a wait.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var result Result[T]
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, result.err)
		}
		if result.IsOk() || attempt == opts.MaxAttempts {
			return result
		}

		if err := Sleep(ctx, opts.waitAfter(attempt)); err != nil {
			return Err[T](err)
		}
	}
	return result
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
