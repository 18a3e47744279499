package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/mineru-batch/internal/library"
)

func TestScheduledService_RunOnceForcesResume(t *testing.T) {
	f := newFixture(t)
	docs := f.writePDFs(t, "a.pdf", "b.pdf")
	require.NoError(t, os.MkdirAll(filepath.Join(f.out, "a"), 0755))

	svc := NewScheduledService(f.orchestrator(Options{}), func() ([]library.Document, error) {
		return docs, nil
	}, "@every 1h", cron.New())

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"b"}, succeededStems(report))
}

func TestScheduledService_DiscoveryErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("input directory vanished")
	svc := NewScheduledService(f.orchestrator(Options{}), func() ([]library.Document, error) {
		return nil, boom
	}, "@every 1h", cron.New())

	report, err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, report)
}

func TestScheduledService_OverlappingRunsCollapse(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var discoveries atomic.Int32

	svc := NewScheduledService(f.orchestrator(Options{}), func() ([]library.Document, error) {
		discoveries.Add(1)
		<-release
		return nil, nil
	}, "@every 1h", cron.New())

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.RunOnce(context.Background())
		}()
	}
	// Let the goroutines pile up behind the first discovery.
	require.Eventually(t, func() bool { return discoveries.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), discoveries.Load())
}

func TestScheduledService_ScheduleRejectsBadExpression(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduledService(f.orchestrator(Options{}), func() ([]library.Document, error) {
		return nil, nil
	}, "not a cron", cron.New())

	assert.Error(t, svc.Schedule(context.Background()))
}
