// Package offline keeps the maintenance task list usable without a network
// connection and reconciles it with the server when connectivity returns.
//
// Architecture
//
// Every local mutation is applied to the local collection immediately and
// recorded as a PendingAction. A sync round later replays the queue:
//
//	AddTaskOffline / UpdateTaskOffline / DeleteTaskOffline / AddNoteOffline
//	     ├── local task collection   (offline_tasks)
//	     └── pending-action queue    (pending_actions)
//	                                      ↓
//	                              SyncWithServer
//	     1. fetch server tasks   (a failure aborts, nothing is written)
//	     2. merge with Resolver  (last writer wins per task)
//	     3. replay queue FIFO    (failures stay queued)
//	     4. persist tasks, queue and last_sync
//
// Usage
//
//	store := offline.NewLocalStore(storage, nil, nil)
//	mgr, err := offline.NewManager(store, offline.Options{
//	    Client: apiClient,
//	    Online: true,
//	})
//	if err != nil {
//	    return err
//	}
//
//	id, err := mgr.AddTaskOffline(task.Task{Title: "Replace filter"})
//	...
//	result := mgr.SyncWithServer(ctx)
//	if !result.Success && !offline.IsRoutine(result.Err) {
//	    log.Printf("sync failed: %s", result.Message)
//	}
//
// Identifiers
//
// Tasks created offline get a "temp_" id. When the server accepts the
// CREATE_TASK action the task and every queued action referring to it are
// rewritten to the permanent id within the same round.
//
// Concurrency
//
// A Manager is safe for concurrent use. At most one round runs at a time;
// a second request is rejected with ErrSyncInProgress rather than queued.
// Local operations made while a round runs are preserved by the round.
//
// Two processes sharing one store file (the CLI and the daemon) each keep
// their own in-memory copy. Reload picks up the other side's writes, but a
// write landing between a round's snapshot and its persist can be lost.
package offline
