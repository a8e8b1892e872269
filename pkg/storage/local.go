package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalStorage implements Storage using the local filesystem.
type LocalStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewLocalStorage creates a new LocalStorage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{basePath: abs}, nil
}

func (s *LocalStorage) resolve(path string) string {
	return filepath.Join(s.basePath, filepath.Clean(path))
}

func (s *LocalStorage) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s *LocalStorage) Write(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(s.resolve(path), data)
}

// writeLocked writes to a temp file then renames it over full.
func (s *LocalStorage) writeLocked(full string, data []byte) error {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.resolve(path)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *LocalStorage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.resolve(prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		paths = append(paths, strings.TrimPrefix(filepath.ToSlash(filepath.Join(prefix, entry.Name())), "/"))
	}
	return paths, nil
}

func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

type localSnapshot struct {
	full    string
	data    []byte
	existed bool
}

// WriteBatch snapshots every target, applies the entries in order and
// restores the snapshots if any step fails.
func (s *LocalStorage) WriteBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make([]localSnapshot, 0, len(entries))
	for _, e := range entries {
		full := s.resolve(e.Path)
		data, err := os.ReadFile(full)
		switch {
		case err == nil:
			snapshots = append(snapshots, localSnapshot{full: full, data: data, existed: true})
		case os.IsNotExist(err):
			snapshots = append(snapshots, localSnapshot{full: full})
		default:
			return fmt.Errorf("failed to snapshot %s: %w", e.Path, err)
		}
	}

	for i, e := range entries {
		var err error
		if e.Delete {
			err = os.Remove(snapshots[i].full)
			if os.IsNotExist(err) {
				err = nil
			}
		} else {
			err = s.writeLocked(snapshots[i].full, e.Data)
		}
		if err != nil {
			return errors.Join(
				fmt.Errorf("failed to apply batch entry %s: %w", e.Path, err),
				s.restoreLocked(snapshots[:i+1]),
			)
		}
	}
	return nil
}

func (s *LocalStorage) restoreLocked(snapshots []localSnapshot) error {
	var errs []error
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if snap.existed {
			if err := s.writeLocked(snap.full, snap.data); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.Remove(snap.full); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
