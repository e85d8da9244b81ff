package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fieldops/fieldtask/internal/connectivity"
	"github.com/fieldops/fieldtask/internal/notify"
	"github.com/fieldops/fieldtask/internal/offline"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a round while online. Zero disables
	// periodic rounds.
	SyncInterval time.Duration

	// DebounceInterval is how long a store change must settle before it is
	// reloaded. This batches the several writes of one CLI command.
	DebounceInterval time.Duration

	// WatchDir is the kv.Dir store directory to watch. Empty disables
	// watching, which is right for SQLite and memory stores.
	WatchDir string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon wires the manager, the connectivity monitor and the notification
// hub into one process.
type Daemon struct {
	manager *offline.Manager
	monitor *connectivity.Monitor
	hub     *notify.Hub
	config  *Config

	watcher       *StoreWatcher
	changeQueue   map[string]time.Time // key -> last change
	changeQueueMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a new Daemon. monitor and hub may be nil.
//
// Use Start() to begin syncing.
func New(manager *offline.Manager, monitor *connectivity.Monitor, hub *notify.Hub, config *Config) (*Daemon, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}

	d := &Daemon{
		manager:     manager,
		monitor:     monitor,
		hub:         hub,
		config:      config,
		changeQueue: make(map[string]time.Time),
	}

	if config.WatchDir != "" {
		watcher, err := NewStoreWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = watcher
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Start the notification hub and the connectivity monitor
//  2. Start watching the store directory
//  3. Run one round if already online
//  4. Run periodic rounds
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.hub != nil {
		if err := d.hub.Start(); err != nil {
			return fmt.Errorf("failed to start notification hub: %w", err)
		}
	}

	if d.monitor != nil {
		if err := d.monitor.Start(d.ctx); err != nil {
			d.shutdown()
			return fmt.Errorf("failed to start connectivity monitor: %w", err)
		}
	}

	if d.watcher != nil {
		if err := d.watcher.Start(d.config.WatchDir); err != nil {
			d.shutdown()
			return err
		}
		d.config.Logger.Printf("Watching: %s", d.config.WatchDir)

		d.wg.Add(2)
		go d.watchStoreEvents()
		go d.processChangeQueue()
	}

	if d.config.SyncInterval > 0 {
		d.wg.Add(1)
		go d.periodicSync()
	}

	if d.manager.IsOnline() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.SyncNow(d.ctx)
		}()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.shutdown()
	return nil
}

func (d *Daemon) shutdown() {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}
		if d.monitor != nil {
			d.monitor.Stop()
		}

		d.wg.Wait()

		if d.hub != nil {
			if err := d.hub.Stop(); err != nil {
				d.config.Logger.Printf("Error stopping hub: %v", err)
			}
		}

		d.config.Logger.Println("Daemon stopped")
	})
}

// SyncNow runs one round and returns its outcome.
func (d *Daemon) SyncNow(ctx context.Context) offline.SyncResult {
	return d.manager.SyncWithServer(ctx)
}

// watchStoreEvents queues changes to the pending-action key.
func (d *Daemon) watchStoreEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if event.Key != offline.KeyPendingActions || event.Op != OpWrite {
				continue
			}
			d.queueChange(event.Key)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a change with debouncing.
func (d *Daemon) queueChange(key string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[key] = time.Now()
}

// processChangeQueue processes queued store changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges reloads the store once changes have settled and
// syncs if another process queued new actions. A change that lands while a
// round is running waits for the next tick.
func (d *Daemon) processPendingChanges() {
	if !d.takeSettled() {
		return
	}

	added := d.manager.Reload()
	if added == 0 {
		return
	}

	d.config.Logger.Printf("Picked up %d queued actions", added)
	if !d.manager.IsOnline() {
		return
	}
	d.SyncNow(d.ctx)
}

// takeSettled removes and reports settled changes, leaving them queued
// while a round is running.
func (d *Daemon) takeSettled() bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	if d.manager.SyncInfo().SyncInProgress {
		return false
	}

	now := time.Now()
	settled := false
	for key, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, key)
		settled = true
	}
	return settled
}

// periodicSync runs a round every SyncInterval while online.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if !d.manager.IsOnline() {
				continue
			}
			result := d.SyncNow(d.ctx)
			if !result.Success && !offline.IsRoutine(result.Err) {
				d.config.Logger.Printf("Periodic sync failed: %s", result.Message)
			}
		}
	}
}
