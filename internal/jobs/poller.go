package jobs

import (
	"context"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultJobTimeout   = 10 * time.Minute
)

// Poller drives submitted jobs to a terminal phase by repeatedly asking a
// StatusSource for their state.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration

	now func() time.Time
}

func NewPoller(interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Poller{Interval: interval, Timeout: timeout, now: time.Now}
}

// Wait returns once every job is Done, Failed or TimedOut. observe, when
// set, receives a copy of each job after every phase or state change.
func (p *Poller) Wait(ctx context.Context, src StatusSource, jobs []*RemoteJob, observe func(RemoteJob)) {
	if len(jobs) == 0 {
		return
	}
	now := p.clock()

	notify := func(j *RemoteJob) {
		if observe != nil {
			observe(*j)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			p.failRemaining(jobs, failure.Wrap(err, failure.Interrupted, "polling interrupted"), notify)
			return
		}

		statuses, err := src.FetchStatus(ctx)
		if err != nil {
			switch {
			case failure.IsKind(err, failure.Unauthorized), failure.IsKind(err, failure.ServiceRejected):
				p.failRemaining(jobs, err, notify)
				return
			case failure.IsKind(err, failure.Interrupted):
				p.failRemaining(jobs, err, notify)
				return
			default:
				log.Warn("Status fetch failed, will poll again: %v", err)
			}
		} else {
			p.apply(jobs, statuses, notify)
		}

		current := now()
		remaining := false
		var nearest time.Duration = -1
		for _, j := range jobs {
			if j.Phase.Terminal() {
				continue
			}
			left := p.Timeout - current.Sub(j.SubmittedAt)
			if left <= 0 {
				j.Phase = PhaseTimedOut
				j.Err = failure.Newf(failure.JobTimedOut, "no result within %s", p.Timeout).
					WithContext("last_state", string(j.State))
				notify(j)
				continue
			}
			remaining = true
			if nearest < 0 || left < nearest {
				nearest = left
			}
		}
		if !remaining {
			return
		}

		wait := p.Interval
		if nearest >= 0 && nearest < wait {
			wait = nearest
		}
		if !sleep(ctx, wait) {
			p.failRemaining(jobs, failure.Wrap(ctx.Err(), failure.Interrupted, "polling interrupted"), notify)
			return
		}
	}
}

func (p *Poller) apply(jobs []*RemoteJob, statuses []Status, notify func(*RemoteJob)) {
	byID := make(map[string]Status, len(statuses))
	byName := make(map[string]Status, len(statuses))
	for _, s := range statuses {
		if s.DataID != "" {
			byID[s.DataID] = s
		}
		if s.FileName != "" {
			byName[s.FileName] = s
		}
	}

	for _, j := range jobs {
		if j.Phase.Terminal() {
			continue
		}
		s, ok := byID[j.DataID]
		if !ok && j.FileName != "" {
			s, ok = byName[j.FileName]
		}
		if !ok {
			s = Status{State: StateQueued}
		}

		prevPhase, prevState := j.Phase, j.State
		j.State = s.State
		switch s.State {
		case StateDone:
			if s.ResultURL == "" {
				j.Phase = PhaseFailed
				j.ErrMsg = "no result URL in response"
				j.Err = failure.New(failure.JobFailed, j.ErrMsg)
				break
			}
			j.Phase = PhaseDone
			j.ResultURL = s.ResultURL
		case StateFailed:
			j.Phase = PhaseFailed
			j.ErrMsg = s.ErrMsg
			if j.ErrMsg == "" {
				j.ErrMsg = "conversion failed"
			}
			j.Err = failure.New(failure.JobFailed, j.ErrMsg)
		default:
			j.Phase = PhasePolling
		}

		if j.Phase != prevPhase || j.State != prevState {
			notify(j)
		}
	}
}

func (p *Poller) failRemaining(jobs []*RemoteJob, err error, notify func(*RemoteJob)) {
	for _, j := range jobs {
		if j.Phase.Terminal() {
			continue
		}
		j.Phase = PhaseFailed
		j.Err = err
		j.ErrMsg = failure.Message(err)
		notify(j)
	}
}

func (p *Poller) clock() func() time.Time {
	if p.now != nil {
		return p.now
	}
	return time.Now
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
