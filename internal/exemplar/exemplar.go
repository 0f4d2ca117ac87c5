// Package exemplar chooses a sample photo for a predicted category. Samples
// live under one directory per identifier token, e.g. category
// "toyota_camry_2018" maps to <static>/<dataset>/toyota/camry/2018/.
package exemplar

import (
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/Brownie44l1/carid/internal/catalog"
)

// Options configures a Picker.
type Options struct {
	// StaticDir is the directory served to clients; picked paths are
	// relative to it.
	StaticDir string
	// DatasetDir is the sample pool inside StaticDir. May be empty.
	DatasetDir string
	CacheSize  int
	CacheTTL   time.Duration
	// Source defaults to a time-seeded NewSource.
	Source Source
}

// Picker selects a random exemplar for a category. Safe for concurrent use.
type Picker struct {
	staticDir  string
	datasetDir string
	lister     Lister
	src        Source
}

// New builds a Picker reading from the local filesystem.
func New(opts Options) *Picker {
	return newPicker(opts, dirLister{})
}

func newPicker(opts Options, lister Lister) *Picker {
	src := opts.Source
	if src == nil {
		src = NewSource(uint64(time.Now().UnixNano()))
	}
	return &Picker{
		staticDir:  opts.StaticDir,
		datasetDir: filepath.ToSlash(filepath.Clean(opts.DatasetDir)),
		lister:     cacheLister(lister, opts.CacheSize, opts.CacheTTL),
		src:        src,
	}
}

// Dir returns the on-disk directory holding samples for id.
func (p *Picker) Dir(id string) string {
	parts := append([]string{p.staticDir, filepath.FromSlash(p.datasetDir)}, catalog.Tokens(id)...)
	return filepath.Join(parts...)
}

// Pick returns a slash-separated path relative to StaticDir. ok is false
// when the category has no samples; err is set only for unexpected
// filesystem failures.
func (p *Picker) Pick(id string) (rel string, ok bool, err error) {
	if err := catalog.ValidateID(id); err != nil {
		return "", false, fmt.Errorf("exemplar: %w", err)
	}
	dir := p.Dir(id)
	names, err := p.lister.List(dir)
	if err != nil {
		return "", false, fmt.Errorf("exemplar: list %s: %w", dir, err)
	}
	if len(names) == 0 {
		return "", false, nil
	}
	name := names[p.src.IntN(len(names))]

	parts := append([]string{p.datasetDir}, catalog.Tokens(id)...)
	parts = append(parts, name)
	return path.Join(parts...), true, nil
}
