package library

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/MimeLyc/mineru-batch/pkg/file"
)

// StemFromPath derives a document stem from a local path. Names are NFC
// normalised so that a file listed in decomposed form (as macOS does for
// CJK and accented names) maps to the same output directory.
func StemFromPath(p string) string {
	return normalizeStem(file.Stem(p))
}

// StemFromURL derives a stem from the last path segment of rawURL, falling
// back to document_<index> when the URL has none.
func StemFromURL(rawURL string, index int) string {
	fallback := fmt.Sprintf("document_%d", index)

	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return fallback
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	stem := normalizeStem(file.Stem(base))
	if stem == "" {
		return fallback
	}
	return stem
}

func normalizeStem(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	// A stem becomes a directory name; path separators would escape the
	// output root.
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
