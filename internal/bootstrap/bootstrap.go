// Package bootstrap fetches the model artifact and the sample dataset on
// first start. Both steps are skipped when their targets already exist.
package bootstrap

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options describes what to fetch and where to put it.
type Options struct {
	ModelURL  string
	ModelPath string

	DatasetURL string
	// StaticDir receives the extracted archive.
	StaticDir string
	// DatasetDir is the directory inside StaticDir whose presence marks
	// the dataset as installed.
	DatasetDir string

	Client *http.Client
	Logger *zap.Logger
}

// Run fetches the model and the dataset concurrently. Empty URLs are skipped.
func Run(ctx context.Context, opts Options) error {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.ModelURL != "" {
		g.Go(func() error {
			fetched, err := EnsureFile(ctx, client, opts.ModelURL, opts.ModelPath)
			if err != nil {
				return fmt.Errorf("bootstrap model: %w", err)
			}
			if fetched {
				logger.Info("model downloaded", zap.String("path", opts.ModelPath))
			}
			return nil
		})
	}
	if opts.DatasetURL != "" {
		g.Go(func() error {
			marker := filepath.Join(opts.StaticDir, opts.DatasetDir)
			fetched, err := EnsureArchive(ctx, client, opts.DatasetURL, opts.StaticDir, marker)
			if err != nil {
				return fmt.Errorf("bootstrap dataset: %w", err)
			}
			if fetched {
				logger.Info("dataset extracted", zap.String("dir", marker))
			}
			return nil
		})
	}
	return g.Wait()
}

// EnsureFile downloads url to dest unless dest already exists. It reports
// whether a download happened.
func EnsureFile(ctx context.Context, client *http.Client, url, dest string) (bool, error) {
	if exists(dest) {
		return false, nil
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	if err := download(ctx, client, url, tmp); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureArchive downloads a zip archive from url and extracts it into
// destDir unless marker already exists.
func EnsureArchive(ctx context.Context, client *http.Client, url, destDir, marker string) (bool, error) {
	if exists(marker) {
		return false, nil
	}
	tmp, err := os.CreateTemp("", "dataset-*.zip")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	if err := download(ctx, client, url, tmp); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := install(tmp.Name(), destDir, marker); err != nil {
		return false, err
	}
	return true, nil
}

// install extracts the archive into a staging directory under destDir and
// moves its top-level entries into place, the one holding marker last. A
// failed extraction leaves nothing behind, so the next run fetches again.
func install(archive, destDir, marker string) error {
	rel, err := filepath.Rel(destDir, marker)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("marker %s is not inside %s", marker, destDir)
	}
	top := strings.Split(rel, string(os.PathSeparator))[0]

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(destDir, ".extract-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := Extract(archive, staging); err != nil {
		return err
	}
	if !exists(filepath.Join(staging, rel)) {
		return fmt.Errorf("archive does not contain %s", filepath.ToSlash(rel))
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if name == top || exists(filepath.Join(destDir, name)) {
			continue
		}
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return os.Rename(filepath.Join(staging, top), filepath.Join(destDir, top))
}

func download(ctx context.Context, client *http.Client, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return nil
}

// Extract unpacks the zip archive at src into destDir. Entries that would
// land outside destDir are rejected; symlinks are skipped.
func Extract(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		mode := f.Mode()
		switch {
		case mode&fs.ModeSymlink != 0:
			continue
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		default:
			if err := extractFile(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
