package artifact

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

const (
	primaryName    = "full.md"
	stagingPrefix  = "."
	stagingMarker  = ".partial-"
	archivePattern = ".download-*.zip"
)

// Artifact is the materialized output of one document.
type Artifact struct {
	Dir     string
	Primary string
}

// Materializer downloads result archives and unpacks them under Root.
// A document directory only appears under Root once it is complete.
type Materializer struct {
	Root       string
	HTTPClient *http.Client
}

func NewMaterializer(root string, client *http.Client) *Materializer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Materializer{Root: root, HTTPClient: client}
}

// Materialize fetches resultURL and installs its contents as Root/stem.
func (m *Materializer) Materialize(ctx context.Context, resultURL, stem string) (*Artifact, error) {
	if err := os.MkdirAll(m.Root, 0755); err != nil {
		return nil, failure.Wrap(err, failure.ExtractFailed, "create output root")
	}

	archive, err := m.download(ctx, resultURL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(archive)

	staging, err := os.MkdirTemp(m.Root, stagingPrefix+stem+stagingMarker+"*")
	if err != nil {
		return nil, failure.Wrap(err, failure.ExtractFailed, "create staging directory")
	}
	installed := false
	os.Chmod(staging, 0755)
	defer func() {
		if !installed {
			os.RemoveAll(staging)
		}
	}()

	if err := extract(archive, staging); err != nil {
		return nil, err
	}
	if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove archive %s: %v", archive, err)
	}

	primary := ""
	if _, err := os.Stat(filepath.Join(staging, primaryName)); err == nil {
		if err := os.Rename(filepath.Join(staging, primaryName), filepath.Join(staging, stem+".md")); err != nil {
			return nil, failure.Wrap(err, failure.ExtractFailed, "rename primary markdown")
		}
		primary = stem + ".md"
	} else {
		log.Warn("Result for %s has no %s", stem, primaryName)
	}

	target := filepath.Join(m.Root, stem)
	if err := install(staging, target); err != nil {
		return nil, err
	}
	installed = true

	a := &Artifact{Dir: target}
	if primary != "" {
		a.Primary = filepath.Join(target, primary)
	}
	return a, nil
}

// CleanStale removes staging directories and archives left by an aborted run.
func (m *Materializer) CleanStale() error {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read output root: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		stale := (e.IsDir() && strings.HasPrefix(name, stagingPrefix) && strings.Contains(name, stagingMarker)) ||
			(!e.IsDir() && strings.HasPrefix(name, ".download-") && strings.HasSuffix(name, ".zip"))
		if !stale {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.Root, name)); err != nil {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
		log.Debug("Removed stale %s", name)
	}
	return nil
}

func (m *Materializer) download(ctx context.Context, resultURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", failure.Wrap(err, failure.DownloadFailed, "build download request")
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", failure.Wrap(ctx.Err(), failure.Interrupted, "download interrupted")
		}
		return "", failure.Wrap(err, failure.DownloadFailed, "download result").WithContext("url", resultURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", failure.Newf(failure.DownloadFailed, "download result: HTTP %d", resp.StatusCode).
			WithContext("url", resultURL)
	}

	f, err := os.CreateTemp(m.Root, archivePattern)
	if err != nil {
		return "", failure.Wrap(err, failure.ExtractFailed, "create archive file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		if ctx.Err() != nil {
			return "", failure.Wrap(ctx.Err(), failure.Interrupted, "download interrupted")
		}
		return "", failure.Wrap(err, failure.DownloadFailed, "read result body").WithContext("url", resultURL)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", failure.Wrap(err, failure.ExtractFailed, "write archive file")
	}
	return f.Name(), nil
}

func extract(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return failure.Wrap(err, failure.ExtractFailed, "open result archive")
	}
	defer r.Close()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if target == filepath.Clean(dest) {
			continue
		}
		if !strings.HasPrefix(target, root) {
			return failure.Newf(failure.ExtractFailed, "archive entry escapes output directory: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return failure.Wrap(err, failure.ExtractFailed, "create directory")
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return failure.Wrap(err, failure.ExtractFailed, "create directory")
	}
	src, err := f.Open()
	if err != nil {
		return failure.Wrap(err, failure.ExtractFailed, "open archive entry").WithContext("entry", f.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return failure.Wrap(err, failure.ExtractFailed, "create file").WithContext("entry", f.Name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return failure.Wrap(err, failure.ExtractFailed, "write file").WithContext("entry", f.Name)
	}
	if err := dst.Close(); err != nil {
		return failure.Wrap(err, failure.ExtractFailed, "close file").WithContext("entry", f.Name)
	}
	return nil
}

// install moves staging to target, replacing an existing target.
func install(staging, target string) error {
	if _, err := os.Stat(target); err == nil {
		old := filepath.Join(filepath.Dir(target), stagingPrefix+filepath.Base(target)+stagingMarker+"old")
		os.RemoveAll(old)
		if err := os.Rename(target, old); err != nil {
			return failure.Wrap(err, failure.ExtractFailed, "move previous output aside")
		}
		if err := os.Rename(staging, target); err != nil {
			os.Rename(old, target)
			return failure.Wrap(err, failure.ExtractFailed, "install output")
		}
		if err := os.RemoveAll(old); err != nil {
			log.Warn("Failed to remove previous output %s: %v", old, err)
		}
		return nil
	}
	if err := os.Rename(staging, target); err != nil {
		return failure.Wrap(err, failure.ExtractFailed, "install output")
	}
	return nil
}
