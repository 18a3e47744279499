package library

import (
	"path/filepath"

	"github.com/MimeLyc/mineru-batch/pkg/file"
)

// OutputDir is where the artifact of the document with this stem lives.
func OutputDir(root, stem string) string {
	return filepath.Join(root, stem)
}

// IsCompleted reports whether a previous run already produced stem's
// output directory.
func IsCompleted(root, stem string) bool {
	return file.IsDir(OutputDir(root, stem))
}

// Pending splits docs into those still to be converted and those whose
// output directory already exists under root. Order is preserved.
func Pending(docs []Document, root string) (pending, done []Document) {
	pending = make([]Document, 0, len(docs))
	for _, doc := range docs {
		if IsCompleted(root, doc.Stem) {
			done = append(done, doc)
			continue
		}
		pending = append(pending, doc)
	}
	return pending, done
}
