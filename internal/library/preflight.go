package library

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

// Limits are the per-file bounds the conversion service enforces.
type Limits struct {
	MaxBytes int64
	MaxPages int
}

var DefaultLimits = Limits{
	MaxBytes: 200 << 20,
	MaxPages: 600,
}

var acceptedMIMEs = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"image/png",
	"image/jpeg",
}

// Office documents are containers; a sniffer that cannot see the inner
// layout only reports the container.
var officeContainers = map[string][]string{
	".doc":  {"application/x-ole-storage"},
	".ppt":  {"application/x-ole-storage"},
	".docx": {"application/zip"},
	".pptx": {"application/zip"},
}

type PageCounter func(path string) (int, error)

type PreflightOption func(*Preflighter)

func WithPageCounter(fn PageCounter) PreflightOption {
	return func(p *Preflighter) {
		p.countPages = fn
	}
}

// Preflighter rejects local files the service would refuse, before any
// remote work is spent on them.
type Preflighter struct {
	limits     Limits
	countPages PageCounter
}

func NewPreflighter(limits Limits, opts ...PreflightOption) *Preflighter {
	p := &Preflighter{
		limits:     limits,
		countPages: pdfapi.PageCountFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check returns a failure.Preflight error when doc cannot be submitted.
// URL documents are fetched by the service itself and always pass.
func (p *Preflighter) Check(doc Document) error {
	if doc.IsURL() {
		return nil
	}

	info, err := os.Stat(doc.Source)
	if err != nil {
		return failure.Wrap(err, failure.Preflight, "input file is not readable")
	}
	if info.Size() == 0 {
		return failure.New(failure.Preflight, "input file is empty")
	}
	if p.limits.MaxBytes > 0 && info.Size() > p.limits.MaxBytes {
		return failure.Newf(failure.Preflight, "file is %d bytes, limit is %d", info.Size(), p.limits.MaxBytes).
			WithContext("file", doc.Source)
	}

	mtype, err := mimetype.DetectFile(doc.Source)
	if err != nil {
		return failure.Wrap(err, failure.Preflight, "cannot detect content type")
	}
	if !accepted(mtype, strings.ToLower(filepath.Ext(doc.Source))) {
		return failure.Newf(failure.Preflight, "unsupported content type %s", mtype.String()).
			WithContext("file", doc.Source)
	}

	if mtype.Is("application/pdf") && p.limits.MaxPages > 0 && p.countPages != nil {
		pages, err := p.countPages(doc.Source)
		if err != nil {
			// The service's parser is more tolerant than ours; let it decide.
			log.Warn("Cannot count pages of %s: %v", doc.Source, err)
			return nil
		}
		if pages > p.limits.MaxPages {
			return failure.Newf(failure.Preflight, "document has %d pages, limit is %d", pages, p.limits.MaxPages).
				WithContext("file", doc.Source)
		}
	}
	return nil
}

func accepted(mtype *mimetype.MIME, ext string) bool {
	containers := officeContainers[ext]
	for m := mtype; m != nil; m = m.Parent() {
		for _, want := range acceptedMIMEs {
			if m.Is(want) {
				return true
			}
		}
		if slices.Contains(containers, m.String()) {
			return true
		}
	}
	return false
}
