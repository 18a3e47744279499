package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

type Success struct {
	Stem string
	Dir  string
}

type Failure struct {
	Stem    string
	Kind    failure.Kind
	Message string
}

// Report summarises one run. It is printed, never persisted.
type Report struct {
	Succeeded []Success
	Failed    []Failure
	Skipped   int
	Elapsed   time.Duration
}

func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

func (r *Report) Total() int {
	return len(r.Succeeded) + len(r.Failed) + r.Skipped
}

func (r *Report) add(outcomes []jobs.Outcome) {
	for _, o := range outcomes {
		if o.Succeeded() {
			r.Succeeded = append(r.Succeeded, Success{Stem: o.Doc.Stem, Dir: o.Artifact.Dir})
			continue
		}
		r.Failed = append(r.Failed, Failure{
			Stem:    o.Doc.Stem,
			Kind:    failure.KindOf(o.Err),
			Message: failure.Message(o.Err),
		})
	}
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed, %d skipped in %s",
		len(r.Succeeded), len(r.Failed), r.Skipped, r.Elapsed.Round(time.Second))
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "\n  %s [%s]: %s", f.Stem, f.Kind, f.Message)
	}
	return b.String()
}

func (r *Report) Log() {
	if r.HasFailures() {
		log.Warn("Batch finished: %s", r)
		return
	}
	log.Info("Batch finished: %s", r)
}
