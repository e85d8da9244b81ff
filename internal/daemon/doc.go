// Package daemon runs the long-lived sync process.
//
// The daemon:
//  1. Follows connectivity and syncs on every reconnect
//  2. Watches the store directory for actions queued by other processes
//     (the ft CLI) and replays them promptly when online
//  3. Periodically runs a round to pull server-side changes
//  4. Serves sync notifications over WebSocket
//  5. Handles graceful shutdown
//
// # Architecture
//
//   - StoreWatcher: fsnotify on a kv.Dir directory, reporting key writes
//   - Daemon: debounces pending-action writes, reloads the manager and
//     syncs when another process queued work
//   - connectivity.Monitor and notify.Hub are started and stopped with it
//
// # Usage
//
//	d, err := daemon.New(manager, monitor, hub, &daemon.Config{
//	    SyncInterval:     5 * time.Minute,
//	    DebounceInterval: 200 * time.Millisecond,
//	    WatchDir:         storeDir,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := d.Start(ctx); err != nil { // blocks until ctx is done
//	    log.Fatal(err)
//	}
//
// # Multiple processes
//
// The CLI and the daemon each hold a Manager over the same store. The
// watcher narrows the window in which they disagree but does not close it:
// a CLI write that lands between a round's snapshot and its final write is
// overwritten by that write. SQLite and memory stores are not watched; with
// them, queued work waits for the next periodic or reconnect round.
package daemon
