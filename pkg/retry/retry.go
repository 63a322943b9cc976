package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "txindexer/pkg/errors"
)

type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// newBackOff never gives up on elapsed time; callers bound it by retry count.
func newBackOff(policy Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// retry budget is spent, or ctx is done.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	var b backoff.BackOff = newBackOff(policy)
	b = backoff.WithContext(b, ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxRetries))

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if onRetry != nil {
		attempt := 0
		notify = func(err error, next time.Duration) {
			attempt++
			onRetry(attempt, err, next)
		}
	}

	return backoff.RetryNotify(operation, b, notify)
}

// Schedule hands out delays between retry rounds of a caller-driven loop,
// such as resubmitting the failed part of a batch.
type Schedule struct {
	b backoff.BackOff
}

func NewSchedule(policy Policy) *Schedule {
	return &Schedule{b: newBackOff(policy)}
}

// Wait sleeps for the next delay. It returns ctx.Err() if ctx ends first.
func (s *Schedule) Wait(ctx context.Context) error {
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		d = 0
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
