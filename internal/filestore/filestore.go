package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists raw uploaded files and hands back a stable locator. The
// locator is opaque to callers; only the implementation that issued it can
// resolve it.
type Store interface {
	Store(ctx context.Context, name string, data []byte) (locator string, err error)
	Read(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

// LocalStore keeps files on the local filesystem under a base directory.
// Locators are absolute file paths.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create dir %q: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.baseDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("filestore: write %q: %w", path, err)
	}
	return path, nil
}

func (s *LocalStore) Read(ctx context.Context, locator string) ([]byte, error) {
	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %q: %w", locator, err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, locator string) error {
	if err := os.Remove(locator); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filestore: delete %q: %w", locator, err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
