package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     string
		wantNext time.Time
		wantLast time.Time
	}{
		{
			name:     "hourly at minute 0",
			expr:     "0 * * * *",
			wantNext: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
			wantLast: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		},
		{
			name:     "every 10 minutes",
			expr:     "*/10 * * * *",
			wantNext: time.Date(2026, 3, 10, 14, 40, 0, 0, time.UTC),
			wantLast: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "daily descriptor",
			expr:     "@daily",
			wantNext: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
			wantLast: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := GetTriggerInfo(tt.expr, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, info.Next)
			assert.Equal(t, tt.wantLast, info.Last)
			assert.Equal(t, tt.wantNext.Sub(ref), info.TimeUntilNext)
			assert.Equal(t, ref.Sub(tt.wantLast), info.TimeSinceLast)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 2 * * *"))
	assert.NoError(t, Validate("@hourly"))
	assert.Error(t, Validate("not a cron"))
	assert.Error(t, Validate("0 0 2 * * *"))
}
