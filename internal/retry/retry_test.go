package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/mineru-batch/internal/failure"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		Name:        "test",
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Backoff:     Constant,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return failure.New(failure.TransientNetwork, "reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsExactlyMaxAttempts(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(4)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return failure.New(failure.TransientNetwork, "status 503")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retried)
	assert.True(t, failure.IsKind(err, failure.RetryExhausted))
	assert.True(t, failure.IsKind(errors.Unwrap(err), failure.TransientNetwork))
	assert.Equal(t, "status 503", failure.Message(err))
}

func TestDo_NonTransientPropagatesImmediately(t *testing.T) {
	calls := 0
	rejected := failure.New(failure.ServiceRejected, "file too large")
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return rejected
	})
	assert.Same(t, rejected, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	p := fastPolicy(3)
	p.Retryable = func(err error) bool { return failure.IsKind(err, failure.DownloadFailed) }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return failure.New(failure.DownloadFailed, "eof")
	})
	assert.Equal(t, 3, calls)
	assert.True(t, failure.IsKind(err, failure.RetryExhausted))
}

func TestDo_InterruptedDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := fastPolicy(10)
	p.BaseDelay = time.Hour

	start := time.Now()
	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return failure.New(failure.TransientNetwork, "timeout")
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, calls)
	assert.True(t, failure.IsKind(err, failure.Interrupted))
	assert.Equal(t, "timeout", failure.Message(err))
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	assert.Zero(t, calls)
	assert.True(t, failure.IsKind(err, failure.Interrupted))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	v, err := DoValue(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		return "batch-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-1", v)
}

func TestPolicy_Delay(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		n      int
		want   time.Duration
	}{
		{name: "constant", policy: Policy{BaseDelay: 3 * time.Second, Backoff: Constant}, n: 4, want: 3 * time.Second},
		{name: "exp first", policy: Policy{BaseDelay: time.Second, Backoff: Exponential}, n: 1, want: time.Second},
		{name: "exp fourth", policy: Policy{BaseDelay: time.Second, Backoff: Exponential}, n: 4, want: 8 * time.Second},
		{name: "exp capped", policy: Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Backoff: Exponential}, n: 10, want: 5 * time.Second},
		{name: "zero n", policy: Policy{BaseDelay: time.Second, Backoff: Exponential}, n: 0, want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.n))
		})
	}
}
