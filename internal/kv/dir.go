package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileExt is the extension used for every key file written by Dir.
const FileExt = ".json"

// Dir stores each key as {dir}/{key}.json. Writes go to a temporary file
// that is renamed into place, so readers never observe a partial value.
type Dir struct {
	mu   sync.Mutex
	path string
}

// OpenDir opens (creating if needed) a directory-backed store.
func OpenDir(path string) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("directory path is required")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory holding the key files.
func (d *Dir) Path() string {
	return d.path
}

// KeyPath returns the file a key is stored in.
func (d *Dir) KeyPath(key string) string {
	return filepath.Join(d.path, key+FileExt)
}

// Get implements Storage.Get.
func (d *Dir) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	// #nosec G304 - key is validated and joined under the store directory
	data, err := os.ReadFile(d.KeyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return data, nil
}

// Set implements Storage.Set.
func (d *Dir) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(d.path, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, d.KeyPath(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace key %s: %w", key, err)
	}
	return nil
}

// Remove implements Storage.Remove.
func (d *Dir) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := os.Remove(d.KeyPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Close implements Storage.Close.
func (d *Dir) Close() error {
	return nil
}
