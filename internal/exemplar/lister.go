package exemplar

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Lister returns the candidate sample file names in a directory. A missing
// directory yields an empty list, not an error.
type Lister interface {
	List(dir string) ([]string, error)
}

type dirLister struct{}

func (dirLister) List(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || e.IsDir() {
			continue
		}
		if !e.Type().IsRegular() {
			// Follow symlinks, skip anything that is not a plain file.
			fi, err := os.Stat(filepath.Join(dir, name))
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
		}
		names = append(names, name)
	}
	return names, nil
}

type cachedLister struct {
	next  Lister
	cache *expirable.LRU[string, []string]
}

// cacheLister wraps next with an expiring LRU of directory listings. It
// returns next unchanged when size or ttl is not positive.
func cacheLister(next Lister, size int, ttl time.Duration) Lister {
	if size <= 0 || ttl <= 0 {
		return next
	}
	return &cachedLister{
		next:  next,
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

func (c *cachedLister) List(dir string) ([]string, error) {
	if names, ok := c.cache.Get(dir); ok {
		return names, nil
	}
	names, err := c.next.List(dir)
	if err != nil {
		return nil, err
	}
	c.cache.Add(dir, names)
	return names, nil
}
