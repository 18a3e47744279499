package jobs

import (
	"context"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/artifact"
	"github.com/MimeLyc/mineru-batch/internal/library"
)

// State is the remote service's view of a job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Phase is the local lifecycle of a job as tracked by the poller.
type Phase string

const (
	PhaseSubmitted Phase = "submitted"
	PhasePolling   Phase = "polling"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
	PhaseTimedOut  Phase = "timed_out"
)

func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseTimedOut
}

// Status is one entry of a status response.
type Status struct {
	DataID    string
	FileName  string
	State     State
	ResultURL string
	ErrMsg    string
}

// RemoteJob tracks one document from submission to a terminal phase. It is
// owned by the worker that submitted it.
type RemoteJob struct {
	DataID      string
	FileName    string
	JobID       string
	Phase       Phase
	State       State
	ResultURL   string
	ErrMsg      string
	Err         error
	SubmittedAt time.Time
}

func NewRemoteJob(doc library.Document, jobID string, submittedAt time.Time) *RemoteJob {
	return &RemoteJob{
		DataID:      doc.Stem,
		FileName:    doc.Name,
		JobID:       jobID,
		Phase:       PhaseSubmitted,
		State:       StateQueued,
		SubmittedAt: submittedAt,
	}
}

// StatusSource answers one status call for a whole submission.
type StatusSource interface {
	FetchStatus(ctx context.Context) ([]Status, error)
}

type StatusSourceFunc func(ctx context.Context) ([]Status, error)

func (f StatusSourceFunc) FetchStatus(ctx context.Context) ([]Status, error) {
	return f(ctx)
}

// Submission is a group of documents sent under one remote batch.
type Submission struct {
	Docs []library.Document
}

// Outcome is the immutable result of one document. Exactly one of Artifact
// and Err is set.
type Outcome struct {
	Doc      library.Document
	Artifact *artifact.Artifact
	Err      error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Artifact != nil
}
