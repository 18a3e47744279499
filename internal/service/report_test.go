package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MimeLyc/mineru-batch/internal/artifact"
	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/internal/library"
)

func TestReport_AddAndString(t *testing.T) {
	r := &Report{Skipped: 2, Elapsed: 1500 * time.Millisecond}
	r.add([]jobs.Outcome{
		{Doc: library.Document{Stem: "a"}, Artifact: &artifact.Artifact{Dir: "out/a"}},
		{Doc: library.Document{Stem: "b"}, Err: failure.New(failure.JobFailed, "corrupt")},
		{Doc: library.Document{Stem: "c"}, Err: errors.New("boom")},
	})

	assert.Equal(t, []Success{{Stem: "a", Dir: "out/a"}}, r.Succeeded)
	assert.Equal(t, 5, r.Total())
	assert.True(t, r.HasFailures())
	assert.Equal(t, failure.Unknown, r.Failed[1].Kind)

	s := r.String()
	assert.Contains(t, s, "1 succeeded, 2 failed, 2 skipped in 2s")
	assert.Contains(t, s, "b [")
	assert.Contains(t, s, "corrupt")
}

func TestReport_Empty(t *testing.T) {
	r := &Report{}
	assert.False(t, r.HasFailures())
	assert.Zero(t, r.Total())
	assert.Equal(t, "0 succeeded, 0 failed, 0 skipped in 0s", r.String())
}
