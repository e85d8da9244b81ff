package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/fieldops/fieldtask/internal/kv"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpWrite indicates a key was created or replaced.
	OpWrite EventOp = iota
	// OpDelete indicates a key was removed.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// KeyEvent reports a change to one key of a directory-backed store.
type KeyEvent struct {
	// Key is the store key, without directory or extension.
	Key string
	// Op is the operation that occurred.
	Op EventOp
}

// StoreWatcher watches a kv.Dir store directory for key changes made by
// any process. Temporary files written during an atomic replace are
// ignored; the rename that publishes them is reported as a write.
type StoreWatcher struct {
	watcher *fsnotify.Watcher
	events  chan KeyEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
}

// NewStoreWatcher creates a watcher. It emits nothing until Start.
func NewStoreWatcher() (*StoreWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &StoreWatcher{
		watcher: watcher,
		events:  make(chan KeyEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir.
func (sw *StoreWatcher) Start(dir string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := sw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch store directory %s: %w", dir, err)
	}
	sw.dir = abs

	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()

	return nil
}

// Stop stops watching and closes the event channels. A watcher that was
// never started only releases its fsnotify handle.
func (sw *StoreWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return sw.watcher.Close()
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)

	if err := sw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	sw.wg.Wait()

	close(sw.events)
	close(sw.errors)

	return nil
}

// Events returns the channel that emits key changes.
// This channel is closed when the watcher is stopped.
func (sw *StoreWatcher) Events() <-chan KeyEvent {
	return sw.events
}

// Errors returns the channel that emits watcher errors.
func (sw *StoreWatcher) Errors() <-chan error {
	return sw.errors
}

// IsRunning returns true if the watcher is currently running.
func (sw *StoreWatcher) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}

func (sw *StoreWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			if keyEvent, ok := sw.convertEvent(event); ok {
				select {
				case sw.events <- keyEvent:
				case <-sw.done:
					return
				}
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case sw.errors <- err:
			case <-sw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a KeyEvent. Returns false for
// events outside the store's key files.
func (sw *StoreWatcher) convertEvent(event fsnotify.Event) (KeyEvent, bool) {
	key, ok := sw.keyOf(event.Name)
	if !ok {
		return KeyEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return KeyEvent{}, false
	}

	return KeyEvent{Key: key, Op: op}, true
}

func (sw *StoreWatcher) keyOf(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil || filepath.Dir(abs) != sw.dir {
		return "", false
	}

	name := filepath.Base(abs)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, kv.FileExt) {
		return "", false
	}
	return strings.TrimSuffix(name, kv.FileExt), true
}
