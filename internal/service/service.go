package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/mineru-batch/internal/library"
	"github.com/MimeLyc/mineru-batch/pkg/icron"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

// DiscoverFunc lists the documents a scheduled run should consider.
type DiscoverFunc func() ([]library.Document, error)

// ScheduledService re-runs a directory batch on a cron expression. Resume
// is always on so every tick only converts new documents.
type ScheduledService struct {
	orch     *Orchestrator
	discover DiscoverFunc
	cronExpr string
	cron     *cron.Cron
}

func NewScheduledService(orch *Orchestrator, discover DiscoverFunc, cronExpr string, c *cron.Cron) *ScheduledService {
	resumed := *orch
	resumed.opts.Resume = true
	return &ScheduledService{
		orch:     &resumed,
		discover: discover,
		cronExpr: cronExpr,
		cron:     c,
	}
}

var singleflightGroup singleflight.Group

func (s *ScheduledService) Schedule(ctx context.Context) error {
	log.Info("Scheduling batch runs with %q", s.cronExpr)
	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error("Scheduled run failed: %v", err)
		}
		s.logNext()
	})
	return err
}

// RunOnce performs one discovery and conversion. Calls made while a run is
// in progress wait for it and share its report.
func (s *ScheduledService) RunOnce(ctx context.Context) (*Report, error) {
	v, err, shared := singleflightGroup.Do("run", func() (any, error) {
		docs, err := s.discover()
		if err != nil {
			return nil, err
		}
		log.Info("Found %d document(s)", len(docs))
		return s.orch.Run(ctx, docs)
	})
	if shared {
		log.Debug("Joined a run already in progress")
	}
	report, _ := v.(*Report)
	return report, err
}

func (s *ScheduledService) logNext() {
	info, err := icron.GetTriggerInfo(s.cronExpr, time.Now())
	if err != nil {
		return
	}
	log.Info("Next run at %s (in %s)", info.Next.Format(time.DateTime), info.TimeUntilNext.Round(time.Second))
}
