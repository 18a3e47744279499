package service

import (
	"context"
	"sync"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/internal/library"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

// Orchestrator converts a set of documents end to end: resume filtering,
// bounded concurrent submission, polling and result materialization.
type Orchestrator struct {
	opts         Options
	client       RemoteClient
	materializer Materializer
	preflight    Preflighter
	poller       *jobs.Poller
	scheduler    *jobs.Scheduler
}

func NewOrchestrator(opts Options, client RemoteClient, materializer Materializer, preflight Preflighter) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		opts:         opts,
		client:       client,
		materializer: materializer,
		preflight:    preflight,
		poller:       jobs.NewPoller(opts.PollInterval, opts.JobTimeout),
		scheduler:    jobs.NewScheduler(opts.Concurrency),
	}
}

// Run processes docs and returns the report. The error is non-nil only
// when the batch was aborted by an authorization failure; per-document
// failures are reported, not returned.
func (o *Orchestrator) Run(ctx context.Context, docs []library.Document) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if c, ok := o.materializer.(staleCleaner); ok {
		if err := c.CleanStale(); err != nil {
			log.Warn("Failed to clean stale output: %v", err)
		}
	}

	pending := docs
	if o.opts.Resume {
		var done []library.Document
		pending, done = library.Pending(docs, o.opts.OutputDir)
		report.Skipped = len(done)
		if len(done) > 0 {
			log.Info("Skipping %d already converted document(s)", len(done))
		}
	}
	if len(pending) == 0 {
		report.Elapsed = time.Since(start)
		report.Log()
		return report, nil
	}

	subs := partition(pending, min(o.opts.BatchSize, o.scheduler.Limit()))
	log.Info("Converting %d document(s) in %d submission(s), concurrency %d",
		len(pending), len(subs), o.scheduler.Limit())

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		fatalOnce sync.Once
		fatal     error
	)
	prog := newProgress(pending)
	outcomes := o.scheduler.Run(runCtx, subs, func(ctx context.Context, sub jobs.Submission) []jobs.Outcome {
		outs := o.runSubmission(ctx, sub, prog)
		for _, out := range outs {
			if failure.IsBatchFatal(out.Err) {
				fatalOnce.Do(func() {
					fatal = out.Err
					log.Error("Authorization failed, aborting batch: %s", failure.Message(out.Err))
					cancel(out.Err)
				})
			}
		}
		return outs
	})

	report.add(outcomes)
	report.Elapsed = time.Since(start)
	report.Log()
	return report, fatal
}

// partition groups local files into submissions of at most size documents.
// URL documents are always submitted alone. Run caps size at the
// concurrency limit so one submission never exceeds it.
func partition(docs []library.Document, size int) []jobs.Submission {
	if size <= 0 {
		size = 1
	}
	var (
		subs    []jobs.Submission
		current []library.Document
	)
	flush := func() {
		if len(current) > 0 {
			subs = append(subs, jobs.Submission{Docs: current})
			current = nil
		}
	}
	for _, doc := range docs {
		if doc.IsURL() {
			subs = append(subs, jobs.Submission{Docs: []library.Document{doc}})
			continue
		}
		current = append(current, doc)
		if len(current) == size {
			flush()
		}
	}
	flush()
	return subs
}
