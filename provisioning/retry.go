package provisioning

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	auth "github.com/goliatone/go-workspace-auth"
)

// RetryPolicy bounds a retried write. The wait after the zero based
// attempt i is BaseDelay * 2^i, without jitter.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy is used by every mandatory provisioning step
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
}

// Delay returns the wait that follows the zero based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	return p.BaseDelay << uint(attempt)
}

// MaxWait is the total time spent sleeping when every attempt fails.
func (p RetryPolicy) MaxWait() time.Duration {
	var total time.Duration
	for i := 0; i < p.Attempts-1; i++ {
		total += p.Delay(i)
	}
	return total
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Delay(p.Attempts),
	}
}

// Permanent wraps err so Retry returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds or policy.Attempts is reached, returning
// the last error unchanged. Every retry is logged with the attempt count and
// the wait before the next try.
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, logger auth.Logger, op func(context.Context) (T, error)) (T, error) {
	policy = policy.normalize()
	logger = auth.NormalizeLogger(logger)

	attempt := 0
	operation := func() (T, error) {
		attempt++
		return op(ctx)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(policy.Attempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Info("retrying write",
				"name", name,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return res, err
}
