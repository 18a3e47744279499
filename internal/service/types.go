package service

import (
	"context"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/artifact"
	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/internal/library"
	"github.com/MimeLyc/mineru-batch/internal/mineru"
	"github.com/MimeLyc/mineru-batch/internal/retry"
)

// RemoteClient is the part of the MinerU API the orchestrator drives.
type RemoteClient interface {
	RequestUploadTarget(ctx context.Context, files []mineru.FileSpec) (*mineru.UploadTarget, error)
	UploadFile(ctx context.Context, uploadURL, path string) error
	CreateURLTask(ctx context.Context, docURL, dataID string) (string, error)
	BatchSource(batchID string) jobs.StatusSource
	TaskSource(taskID, dataID string) jobs.StatusSource
}

type Materializer interface {
	Materialize(ctx context.Context, resultURL, stem string) (*artifact.Artifact, error)
}

// Preflighter validates a document before any remote work is done for it.
type Preflighter interface {
	Check(doc library.Document) error
}

type staleCleaner interface {
	CleanStale() error
}

// Options tune a run. Zero values fall back to the package defaults.
type Options struct {
	OutputDir     string
	Concurrency   int
	BatchSize     int
	Resume        bool
	PollInterval  time.Duration
	JobTimeout    time.Duration
	DownloadRetry retry.Policy
}

const DefaultOutputDir = "./output"

func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.Concurrency <= 0 {
		o.Concurrency = jobs.DefaultConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = jobs.DefaultPollInterval
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = jobs.DefaultJobTimeout
	}
	if o.DownloadRetry.MaxAttempts <= 0 {
		o.DownloadRetry = retry.Default("download")
	}
	return o
}
