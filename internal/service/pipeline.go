package service

import (
	"context"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/artifact"
	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/internal/library"
	"github.com/MimeLyc/mineru-batch/internal/mineru"
	"github.com/MimeLyc/mineru-batch/internal/retry"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

// runSubmission takes one submission through preflight, upload, polling
// and materialization. It returns one outcome per document.
func (o *Orchestrator) runSubmission(ctx context.Context, sub jobs.Submission, prog *progress) []jobs.Outcome {
	if len(sub.Docs) == 1 && sub.Docs[0].IsURL() {
		return []jobs.Outcome{o.runURL(ctx, sub.Docs[0], prog)}
	}

	results := make(map[string]jobs.Outcome, len(sub.Docs))
	fail := func(doc library.Document, err error) {
		results[doc.Stem] = jobs.Outcome{Doc: doc, Err: err}
		prog.report(doc.Stem, "failed: "+failure.Message(err))
	}

	ready := make([]library.Document, 0, len(sub.Docs))
	for _, doc := range sub.Docs {
		if o.preflight != nil {
			if err := o.preflight.Check(doc); err != nil {
				fail(doc, err)
				continue
			}
		}
		ready = append(ready, doc)
	}

	if len(ready) > 0 {
		o.runFiles(ctx, ready, prog, results, fail)
	}

	out := make([]jobs.Outcome, 0, len(sub.Docs))
	for _, doc := range sub.Docs {
		out = append(out, results[doc.Stem])
	}
	return out
}

func (o *Orchestrator) runFiles(ctx context.Context, docs []library.Document, prog *progress,
	results map[string]jobs.Outcome, fail func(library.Document, error)) {
	specs := make([]mineru.FileSpec, len(docs))
	for i, doc := range docs {
		specs[i] = mineru.FileSpec{Name: doc.Name, DataID: doc.Stem}
	}

	target, err := o.client.RequestUploadTarget(ctx, specs)
	if err == nil && len(target.URLs) < len(docs) {
		err = failure.Newf(failure.ServiceRejected, "expected %d upload URLs, got %d", len(docs), len(target.URLs))
	}
	if err != nil {
		for _, doc := range docs {
			fail(doc, err)
		}
		return
	}

	uploaded := make([]library.Document, 0, len(docs))
	for i, doc := range docs {
		prog.report(doc.Stem, "uploading")
		if err := o.client.UploadFile(ctx, target.URLs[i], doc.Source); err != nil {
			fail(doc, err)
			continue
		}
		uploaded = append(uploaded, doc)
	}
	if len(uploaded) == 0 {
		return
	}

	submittedAt := time.Now()
	remote := make([]*jobs.RemoteJob, len(uploaded))
	for i, doc := range uploaded {
		remote[i] = jobs.NewRemoteJob(doc, target.BatchID, submittedAt)
		prog.report(doc.Stem, "submitted")
	}

	o.poller.Wait(ctx, o.client.BatchSource(target.BatchID), remote, prog.observe)

	for i, doc := range uploaded {
		a, err := o.finish(ctx, doc, remote[i])
		if err != nil {
			fail(doc, err)
			continue
		}
		results[doc.Stem] = jobs.Outcome{Doc: doc, Artifact: a}
		prog.report(doc.Stem, "done")
	}
}

func (o *Orchestrator) runURL(ctx context.Context, doc library.Document, prog *progress) jobs.Outcome {
	failed := func(err error) jobs.Outcome {
		prog.report(doc.Stem, "failed: "+failure.Message(err))
		return jobs.Outcome{Doc: doc, Err: err}
	}

	taskID, err := o.client.CreateURLTask(ctx, doc.Source, doc.Stem)
	if err != nil {
		return failed(err)
	}
	prog.report(doc.Stem, "submitted")

	job := jobs.NewRemoteJob(doc, taskID, time.Now())
	o.poller.Wait(ctx, o.client.TaskSource(taskID, doc.Stem), []*jobs.RemoteJob{job}, prog.observe)

	a, err := o.finish(ctx, doc, job)
	if err != nil {
		return failed(err)
	}
	prog.report(doc.Stem, "done")
	return jobs.Outcome{Doc: doc, Artifact: a}
}

// finish materializes a Done job, retrying failed downloads.
func (o *Orchestrator) finish(ctx context.Context, doc library.Document, job *jobs.RemoteJob) (*artifact.Artifact, error) {
	if job.Phase != jobs.PhaseDone {
		if job.Err != nil {
			return nil, job.Err
		}
		return nil, failure.Newf(failure.Unknown, "job ended in phase %s", job.Phase)
	}

	policy := o.opts.DownloadRetry
	policy.Name = "download " + doc.Stem
	policy.Retryable = func(err error) bool {
		return failure.IsKind(err, failure.DownloadFailed)
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("Download of %s failed (attempt %d), retrying in %s: %s",
			doc.Stem, attempt, delay, failure.Message(err))
	}

	return retry.DoValue(ctx, policy, func(ctx context.Context) (*artifact.Artifact, error) {
		return o.materializer.Materialize(ctx, job.ResultURL, doc.Stem)
	})
}
