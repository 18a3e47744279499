package jobs

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

const DefaultConcurrency = 5

// Executor runs the whole pipeline for one submission and returns one
// outcome per document in the submission.
type Executor func(ctx context.Context, sub Submission) []Outcome

// Scheduler runs submissions concurrently while keeping at most Limit
// documents in flight. A submission of n documents occupies n slots.
type Scheduler struct {
	limit int64
	sem   *semaphore.Weighted
}

func NewScheduler(limit int) *Scheduler {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Scheduler{
		limit: int64(limit),
		sem:   semaphore.NewWeighted(int64(limit)),
	}
}

func (s *Scheduler) Limit() int {
	return int(s.limit)
}

// Run dispatches every submission and blocks until all of them finish.
// The result holds exactly one outcome per document, in submission order.
// Submissions larger than Limit are split so the bound always holds.
func (s *Scheduler) Run(ctx context.Context, subs []Submission, exec Executor) []Outcome {
	subs = s.split(subs)
	slots := make([][]Outcome, len(subs))
	var wg sync.WaitGroup

	for i, sub := range subs {
		if len(sub.Docs) == 0 {
			continue
		}
		weight := int64(len(sub.Docs))
		if ctx.Err() != nil || s.sem.Acquire(ctx, weight) != nil {
			slots[i] = interruptedOutcomes(sub, ctx.Err())
			continue
		}
		// Acquire may win a race against cancellation.
		if ctx.Err() != nil {
			s.sem.Release(weight)
			slots[i] = interruptedOutcomes(sub, ctx.Err())
			continue
		}

		wg.Add(1)
		go func(i int, sub Submission) {
			defer wg.Done()
			defer s.sem.Release(weight)
			slots[i] = s.execute(ctx, sub, exec)
		}(i, sub)
	}
	wg.Wait()

	total := 0
	for _, sub := range subs {
		total += len(sub.Docs)
	}
	out := make([]Outcome, 0, total)
	for _, slot := range slots {
		out = append(out, slot...)
	}
	return out
}

// split cuts every submission into chunks of at most Limit documents.
// Acquiring more than Limit slots would block forever.
func (s *Scheduler) split(subs []Submission) []Submission {
	limit := int(s.limit)
	out := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		docs := sub.Docs
		for len(docs) > limit {
			out = append(out, Submission{Docs: docs[:limit:limit]})
			docs = docs[limit:]
		}
		out = append(out, Submission{Docs: docs})
	}
	return out
}

func (s *Scheduler) execute(ctx context.Context, sub Submission, exec Executor) (outcomes []Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Submission of %d document(s) panicked: %v", len(sub.Docs), r)
			err := failure.Newf(failure.Unknown, "internal error: %v", r)
			outcomes = make([]Outcome, len(sub.Docs))
			for i, doc := range sub.Docs {
				outcomes[i] = Outcome{Doc: doc, Err: err}
			}
		}
	}()
	return complete(sub, exec(ctx, sub))
}

// complete returns one outcome per document of sub, keyed by stem. Missing
// documents get an error outcome and extras are dropped.
func complete(sub Submission, got []Outcome) []Outcome {
	byStem := make(map[string]Outcome, len(got))
	for _, o := range got {
		if _, seen := byStem[o.Doc.Stem]; !seen {
			byStem[o.Doc.Stem] = o
		}
	}

	out := make([]Outcome, len(sub.Docs))
	for i, doc := range sub.Docs {
		o, ok := byStem[doc.Stem]
		switch {
		case !ok:
			o = Outcome{Doc: doc, Err: failure.New(failure.Unknown, "no outcome reported")}
		case o.Err == nil && o.Artifact == nil:
			o = Outcome{Doc: doc, Err: failure.New(failure.Unknown, "outcome without artifact")}
		}
		o.Doc = doc
		out[i] = o
	}
	return out
}

func interruptedOutcomes(sub Submission, cause error) []Outcome {
	if cause == nil {
		cause = context.Canceled
	}
	err := failure.Wrap(cause, failure.Interrupted, fmt.Sprintf("not started: %v", cause))
	out := make([]Outcome, len(sub.Docs))
	for i, doc := range sub.Docs {
		out[i] = Outcome{Doc: doc, Err: err}
	}
	return out
}
