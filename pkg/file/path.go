package file

import (
	"path/filepath"
	"strings"
)

// Stem returns the file name of path without its last extension.
// e.g. "/in/report.v2.pdf" -> "report.v2"
func Stem(path string) string {
	if path == "" {
		return ""
	}
	name := filepath.Base(path)
	lastDot := strings.LastIndex(name, ".")
	if lastDot <= 0 {
		return name
	}
	return name[:lastDot]
}

func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
