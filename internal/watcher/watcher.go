// Package watcher triggers worker restarts when the worker's source
// changes during development.
package watcher

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var ErrHotReloadUnavailable = errors.New("hot reload is not available in this build")

type Config struct {
	// Root is the directory that is watched recursively.
	Root string `conf:"root"`

	// Ignore lists additional base name patterns to ignore. Dot files
	// and directories are always ignored.
	Ignore []string `conf:"ignore"`

	// Debounce coalesces events arriving within the given duration into
	// a single restart. Zero restarts once per event.
	Debounce time.Duration `conf:"debounce"`
}

type Watcher interface {
	// Start begins watching. The restart callback is invoked from a
	// single goroutine, never concurrently with itself.
	Start() error

	// Stop stops watching. No restart is triggered after Stop returns.
	Stop() error
}

// ignored reports whether path, relative to root, is excluded from
// watching.
func ignored(root, path string, patterns []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}

	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}

	return false
}
