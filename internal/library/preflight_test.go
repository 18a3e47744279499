package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/mineru-batch/internal/failure"
)

func writeDoc(t *testing.T, name string, content []byte) Document {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return fileDocument(p)
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

func TestPreflighter_Check(t *testing.T) {
	pages := func(n int, err error) PageCounter {
		return func(string) (int, error) { return n, err }
	}

	tests := []struct {
		name    string
		doc     func(t *testing.T) Document
		limits  Limits
		counter PageCounter
		wantErr bool
	}{
		{
			name:    "pdf within limits",
			doc:     func(t *testing.T) Document { return writeDoc(t, "a.pdf", pdfBytes) },
			limits:  DefaultLimits,
			counter: pages(12, nil),
		},
		{
			name:    "pdf over page limit",
			doc:     func(t *testing.T) Document { return writeDoc(t, "a.pdf", pdfBytes) },
			limits:  DefaultLimits,
			counter: pages(601, nil),
			wantErr: true,
		},
		{
			name:    "unreadable page count is left to the service",
			doc:     func(t *testing.T) Document { return writeDoc(t, "a.pdf", pdfBytes) },
			limits:  DefaultLimits,
			counter: pages(0, errors.New("xref broken")),
		},
		{
			name:    "png",
			doc:     func(t *testing.T) Document { return writeDoc(t, "scan.png", []byte("\x89PNG\r\n\x1a\n0000IHDR")) },
			limits:  DefaultLimits,
			counter: pages(0, nil),
		},
		{
			name:    "text disguised as pdf",
			doc:     func(t *testing.T) Document { return writeDoc(t, "fake.pdf", []byte("just some text")) },
			limits:  DefaultLimits,
			counter: pages(1, nil),
			wantErr: true,
		},
		{
			name:    "too large",
			doc:     func(t *testing.T) Document { return writeDoc(t, "a.pdf", pdfBytes) },
			limits:  Limits{MaxBytes: 8},
			counter: pages(1, nil),
			wantErr: true,
		},
		{
			name:    "empty",
			doc:     func(t *testing.T) Document { return writeDoc(t, "a.pdf", nil) },
			limits:  DefaultLimits,
			counter: pages(1, nil),
			wantErr: true,
		},
		{
			name:   "url documents always pass",
			doc:    func(*testing.T) Document { return urlDocument("https://example.com/a.pdf", 0) },
			limits: DefaultLimits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreflighter(tt.limits, WithPageCounter(tt.counter))
			err := p.Check(tt.doc(t))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, failure.IsKind(err, failure.Preflight))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPreflighter_MissingFile(t *testing.T) {
	err := NewPreflighter(DefaultLimits).Check(Document{Source: "/does/not/exist.pdf", Kind: KindFile})
	assert.True(t, failure.IsKind(err, failure.Preflight))
}
