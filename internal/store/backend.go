package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Backend persists the encoded state of a store.
type Backend interface {
	// Load returns the persisted state, or nil if nothing was persisted.
	Load() ([]byte, error)

	// Save durably replaces the persisted state.
	Save(data []byte) error
}

// FileBackend keeps the state in a single file. Saves are guarded by a
// lock file, so several processes can share the same file.
type FileBackend struct {
	path string
	lock *flock.Flock
}

var _ Backend = (*FileBackend)(nil)

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	return data, err
}

// Save writes data to a temporary file, syncs it, and renames it over
// the state file.
func (b *FileBackend) Save(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	if err := b.lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = b.lock.Unlock() }()

	f, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	_, writeErr := f.Write(data)
	if writeErr == nil {
		writeErr = f.Sync()
	}

	if closeErr := f.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}

	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", writeErr)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state: %w", err)
	}

	return nil
}
