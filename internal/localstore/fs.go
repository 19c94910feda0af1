// Package localstore is a small persistent key/value store backed by one
// file per key, used for client-side state such as the session token.
package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/vaultlinks/internal/apperr"
)

// FS implements a key/value store in a directory.
type FS struct {
	root string // absolute path to the state directory
}

// NewFS creates a store rooted at dir, creating the directory if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("localstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("localstore: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("localstore: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("localstore: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute state directory.
func (f *FS) Root() string {
	return f.root
}

// Path returns the file backing key. Keys are plain names: no separators,
// no traversal, no leading dot.
func (f *FS) Path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("localstore: key is required")
	}
	cleaned := filepath.Clean(key)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("localstore: invalid key: %s", key)
	}
	return filepath.Join(f.root, cleaned), nil
}

// Get returns the value stored under key, or apperr.ErrNotFound.
func (f *FS) Get(key string) (string, error) {
	p, err := f.Path(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("localstore: read %s: %w", key, err)
	}
	return string(data), nil
}

// Set atomically writes value under key: tmp file → fsync → rename.
func (f *FS) Set(key, value string) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".vaultlinks-tmp-*")
	if err != nil {
		return fmt.Errorf("localstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("localstore: chmod temp: %w", err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		return fmt.Errorf("localstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("localstore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("localstore: rename: %w", err)
	}
	success = true
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (f *FS) Remove(key string) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: remove %s: %w", key, err)
	}
	return nil
}
