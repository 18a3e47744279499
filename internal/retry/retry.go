package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/failure"
)

type Backoff int

const (
	Constant Backoff = iota
	Exponential
)

func (b Backoff) String() string {
	if b == Exponential {
		return "exponential"
	}
	return "constant"
}

// Policy describes how a fallible operation is retried.
//
// Retryable classifies errors; when nil, only failure.TransientNetwork is
// retried. Errors it rejects are returned as-is without consuming budget.
type Policy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	Retryable   func(error) bool
	OnRetry     func(attempt int, err error, delay time.Duration)
}

// Default allows five attempts, doubling from one second.
func Default(name string) Policy {
	return Policy{
		Name:        name,
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Backoff:     Exponential,
	}
}

// Delay returns the sleep before attempt n+1 after n failed attempts (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	if p.Backoff == Exponential {
		for i := 1; i < n; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return failure.IsTransient(err)
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts or ctx ends.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, interrupted(p, attempt-1, last, err)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err

		if !p.retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, interrupted(p, attempt, last, err)
		}
	}

	return zero, failure.Wrap(last, failure.RetryExhausted,
		fmt.Sprintf("%s failed after %d attempts", p.label(), attempts)).
		WithContext("attempts", attempts)
}

func (p Policy) label() string {
	if p.Name == "" {
		return "operation"
	}
	return p.Name
}

func interrupted(p Policy, attempts int, last, ctxErr error) error {
	cause := last
	if cause == nil {
		cause = ctxErr
	}
	return failure.Wrap(cause, failure.Interrupted,
		fmt.Sprintf("%s interrupted after %d attempts", p.label(), attempts)).
		WithContext("reason", ctxErr.Error())
}

func sleep(ctx context.Context, d time.Duration) error {
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
