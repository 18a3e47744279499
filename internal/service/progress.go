package service

import (
	"sync"

	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/internal/library"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

// progress prints one "[i/n] stem: state" line per document transition.
type progress struct {
	mu    sync.Mutex
	index map[string]int
	total int
	last  map[string]string
}

func newProgress(docs []library.Document) *progress {
	p := &progress{
		index: make(map[string]int, len(docs)),
		total: len(docs),
		last:  make(map[string]string, len(docs)),
	}
	for i, doc := range docs {
		p.index[doc.Stem] = i + 1
	}
	return p
}

func (p *progress) report(stem, state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last[stem] == state {
		return
	}
	p.last[stem] = state
	log.Info("[%d/%d] %s: %s", p.index[stem], p.total, stem, state)
}

func (p *progress) observe(j jobs.RemoteJob) {
	switch j.Phase {
	case jobs.PhasePolling:
		p.report(j.DataID, string(j.State))
	case jobs.PhaseTimedOut:
		p.report(j.DataID, "timed out")
	}
}
