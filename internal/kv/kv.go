// Package kv provides the durable key-value surfaces the offline store
// persists into.
//
// Values are opaque byte blobs. Three backends are available:
//
//   - SQLite: embedded database file (ncruces/go-sqlite3) in WAL mode
//   - Dir: one file per key inside a directory
//   - Memory: process-local map, used by tests and ephemeral sessions
//
// All backends are safe for concurrent use within one process.
package kv

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Storage is a durable get/set/remove surface keyed by string.
type Storage interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Close releases the backend's resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendDir    = "dir"
	BackendMemory = "memory"
)

// Open creates the named backend rooted at path.
// The memory backend ignores path.
func Open(backend, path string) (Storage, error) {
	switch strings.ToLower(backend) {
	case BackendSQLite, "":
		return OpenSQLite(path)
	case BackendDir:
		return OpenDir(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
