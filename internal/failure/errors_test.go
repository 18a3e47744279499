package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: Unknown},
		{name: "plain", err: errors.New("boom"), want: Unknown},
		{name: "direct", err: New(JobFailed, "corrupt"), want: JobFailed},
		{name: "wrapped by fmt", err: fmt.Errorf("upload: %w", New(TransientNetwork, "reset")), want: TransientNetwork},
		{name: "outermost wins", err: Wrap(New(TransientNetwork, "503"), RetryExhausted, "gave up"), want: RetryExhausted},
		{name: "context canceled", err: context.Canceled, want: Interrupted},
		{name: "deadline", err: fmt.Errorf("x: %w", context.DeadlineExceeded), want: Interrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_StringIncludesContextAndCause(t *testing.T) {
	err := Wrap(errors.New("connection reset"), TransientNetwork, "upload failed").
		WithContext("url", "https://oss/x").
		WithContext("attempt", 2)

	got := err.Error()
	assert.Contains(t, got, "[TransientNetwork] upload failed")
	assert.Contains(t, got, "context: attempt=2, url=https://oss/x")
	assert.Contains(t, got, "cause: connection reset")
	assert.True(t, errors.Is(err, err.Cause))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsTransient(New(TransientNetwork, "x")))
	assert.False(t, IsTransient(New(ServiceRejected, "x")))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsBatchFatal(fmt.Errorf("wrap: %w", New(Unauthorized, "token expired"))))
	assert.False(t, IsBatchFatal(New(JobFailed, "x")))
}

func TestMessage_ReturnsInnermostMessage(t *testing.T) {
	err := fmt.Errorf("poll: %w", Wrap(New(JobFailed, "corrupt"), Unknown, ""))
	assert.Equal(t, "corrupt", Message(err))

	exhausted := Wrap(New(TransientNetwork, "status 503"), RetryExhausted, "upload gave up after 3 attempts")
	assert.Equal(t, "status 503", Message(exhausted))

	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", Message(nil))
}
