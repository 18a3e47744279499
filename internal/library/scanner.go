package library

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/pkg/file"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

type scannerOptions struct {
	exts []string
}

type Option func(*scannerOptions)

// WithExtensions overrides SupportedExts for directory scans.
func WithExtensions(exts ...string) Option {
	return func(o *scannerOptions) {
		o.exts = exts
	}
}

// Scanner turns a Selector into the list of documents of one run.
type Scanner struct {
	exts []string
}

func NewScanner(opts ...Option) *Scanner {
	options := scannerOptions{
		exts: SupportedExts,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{exts: options.exts}
}

// Discover resolves sel into documents. Documents whose stem repeats an
// earlier one are dropped with a warning, so that no two inputs ever share
// an output directory.
func (s *Scanner) Discover(sel Selector) ([]Document, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}

	var (
		docs []Document
		err  error
	)
	switch {
	case sel.URL != "":
		docs = []Document{urlDocument(strings.TrimSpace(sel.URL), 0)}
	case sel.URLsFile != "":
		docs, err = readURLsFile(sel.URLsFile)
	case sel.File != "":
		docs, err = singleFile(sel.File)
	case sel.Dir != "":
		docs, err = s.scanDir(sel.Dir, sel.Recursive)
	}
	if err != nil {
		return nil, err
	}

	return dedupeStems(docs), nil
}

func (sel Selector) validate() error {
	set := 0
	for _, v := range []string{sel.URL, sel.File, sel.Dir, sel.URLsFile} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set == 0 {
		return failure.New(failure.Config, "one of --url, --file, --dir or --urls-file is required")
	}
	if set > 1 {
		return failure.New(failure.Config, "--url, --file, --dir and --urls-file are mutually exclusive")
	}
	return nil
}

func (s *Scanner) scanDir(dir string, recursive bool) ([]Document, error) {
	if !file.IsDir(dir) {
		return nil, failure.Newf(failure.Config, "directory %s does not exist", dir)
	}
	paths, err := file.FindByExt(dir, s.exts, recursive)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		docs = append(docs, fileDocument(p))
	}
	return docs, nil
}

func singleFile(path string) ([]Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, failure.Wrap(err, failure.Config, fmt.Sprintf("cannot read input file %s", path))
	}
	if info.IsDir() {
		return nil, failure.Newf(failure.Config, "%s is a directory, use --dir", path)
	}
	return []Document{fileDocument(path)}, nil
}

func readURLsFile(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Wrap(err, failure.Config, fmt.Sprintf("cannot open URL list %s", path))
	}
	defer f.Close()

	var docs []Document
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		docs = append(docs, urlDocument(line, len(docs)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list %s: %w", path, err)
	}
	return docs, nil
}

func fileDocument(path string) Document {
	return Document{
		Stem:   StemFromPath(path),
		Name:   filepath.Base(path),
		Source: path,
		Kind:   KindFile,
	}
}

func urlDocument(rawURL string, index int) Document {
	stem := StemFromURL(rawURL, index)
	return Document{
		Stem:   stem,
		Name:   stem,
		Source: rawURL,
		Kind:   KindURL,
	}
}

func dedupeStems(docs []Document) []Document {
	seen := make(map[string]string, len(docs))
	ret := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if prev, ok := seen[doc.Stem]; ok {
			log.Warn("Skipping %s: stem %q already used by %s", doc.Source, doc.Stem, prev)
			continue
		}
		seen[doc.Stem] = doc.Source
		ret = append(ret, doc)
	}
	return ret
}
