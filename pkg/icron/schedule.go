package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerInfo describes where refTime sits between two firings of a
// schedule.
type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// Parse accepts the five-field syntax and descriptors such as @hourly,
// the same language cron.New understands by default.
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return schedule, nil
}

func Validate(cronExpr string) error {
	_, err := Parse(cronExpr)
	return err
}

func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       lastBefore(schedule, refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	return info, nil
}

// lastBefore walks back in growing steps until a firing at or before
// refTime is found, then walks forward to the latest one. It gives up
// after a year.
func lastBefore(schedule cron.Schedule, refTime time.Time) time.Time {
	limit := refTime.AddDate(-1, 0, 0)
	for step := time.Hour; ; step *= 2 {
		start := refTime.Add(-step)
		if start.Before(limit) {
			start = limit
		}
		candidate := schedule.Next(start)
		if !candidate.After(refTime) {
			for {
				next := schedule.Next(candidate)
				if next.After(refTime) {
					return candidate
				}
				candidate = next
			}
		}
		if start.Equal(limit) {
			return time.Time{}
		}
	}
}
