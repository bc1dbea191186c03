// Package storage implements the durable key-value files backing the calendar,
// user, and notification-history stores. Writes are atomic: encode to a
// sibling temp file, fsync, then rename over the target, so readers never see
// a partially written file even if the process dies mid-save.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// Store reads and writes JSON documents on a filesystem. The filesystem is
// abstracted so tests can exercise crash behavior on an in-memory fs.
type Store struct {
	fs afero.Fs
}

// New returns a store on the real filesystem.
func New() *Store {
	return &Store{fs: afero.NewOsFs()}
}

// NewWithFs returns a store on the given filesystem.
func NewWithFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Load decodes the JSON file at path into v. A missing file is not an error:
// Load returns (false, nil) and leaves v untouched, so callers start empty.
func (s *Store) Load(path string, v any) (bool, error) {
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// Save atomically replaces the JSON file at path with the encoding of v.
func (s *Store) Save(path string, v any) error {
	tmp := path + ".tmp"
	file, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file %s: %w", tmp, err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("encode %s: %w", path, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}

	if err := file.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}
