package offline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fieldops/fieldtask/internal/task"
)

// SyncResult is the outcome of one SyncWithServer call.
type SyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// SyncedCount is the size of the merged collection; PendingCount is the
	// queue length left for the next round. Both are zero on failure.
	SyncedCount  int `json:"syncedCount,omitempty"`
	PendingCount int `json:"pendingCount,omitempty"`

	// Replay statistics for this round.
	Replayed int `json:"replayed,omitempty"`
	Failed   int `json:"failed,omitempty"`
	Dropped  int `json:"dropped,omitempty"`

	Duration time.Duration `json:"duration,omitempty"`

	// Err carries the failure class; check it with errors.Is.
	Err error `json:"-"`
}

func failure(err error, message string) SyncResult {
	return SyncResult{Success: false, Message: message, Err: err}
}

// SyncWithServer runs one reconciliation round: fetch the server
// collection, merge it with the local one, replay the pending queue and
// persist the result.
//
// It never returns an error. A round requested while offline or while
// another round is running is rejected immediately without touching the
// network or storage. A failed fetch aborts the round before any write.
func (m *Manager) SyncWithServer(ctx context.Context) SyncResult {
	if !m.IsOnline() {
		return m.finish(failure(ErrNoConnectivity, "No network connection"))
	}
	if !m.round.TryLock() {
		return m.finish(failure(ErrSyncInProgress, "Sync already in progress"))
	}
	defer m.round.Unlock()

	m.inProgress.Store(true)
	defer m.inProgress.Store(false)

	start := m.now()
	result := m.runRound(ctx)
	result.Duration = m.now().Sub(start)
	return m.finish(result)
}

func (m *Manager) finish(result SyncResult) SyncResult {
	switch {
	case result.Success:
		m.logger.Printf("%s (%d tasks, %d pending, %v)", result.Message, result.SyncedCount, result.PendingCount, result.Duration)
	case IsRoutine(result.Err):
		m.logger.Printf("Sync skipped: %s", result.Message)
	default:
		m.logger.Printf("ERROR: sync failed: %v", result.Err)
	}

	if m.observer != nil {
		m.observer.SyncFinished(result)
	}
	return result
}

func (m *Manager) runRound(ctx context.Context) SyncResult {
	if m.client == nil {
		return failure(fmt.Errorf("%w: no server configured", ErrNetwork), "No server configured")
	}

	m.logger.Printf("Starting sync round")

	serverTasks, err := m.client.ListTasks(ctx)
	if err != nil {
		return failure(fmt.Errorf("%w: failed to fetch tasks: %w", ErrNetwork, err),
			"Failed to fetch tasks from server: "+err.Error())
	}

	m.mu.Lock()
	local := task.CloneAll(m.tasks)
	queue := append([]PendingAction{}, m.actions...)
	m.mu.Unlock()

	merged := m.resolver.Resolve(serverTasks, local)
	rep := m.replay(ctx, queue)

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	tasks, actions := m.settleLocked(merged, local, queue, rep)

	m.tasks = tasks
	m.actions = actions
	m.lastSync = now
	_ = m.store.SaveTasks(m.tasks)
	_ = m.store.SavePendingActions(m.actions)
	_ = m.store.SaveLastSync(now)

	msg := "Sync completed successfully"
	if rep.failed > 0 {
		msg = fmt.Sprintf("Sync completed with %d of %d actions still pending", len(rep.kept), len(queue))
	}
	return SyncResult{
		Success:      true,
		Message:      msg,
		SyncedCount:  len(tasks),
		PendingCount: len(actions),
		Replayed:     rep.succeeded,
		Failed:       rep.failed,
		Dropped:      rep.dropped,
	}
}

// settleLocked reconciles the merged collection and the replay outcome with
// local changes made while the round ran. local and queue are the snapshots
// the round started from; m.tasks and m.actions are the current state.
func (m *Manager) settleLocked(merged, local []task.Task, queue []PendingAction, rep replayOutcome) ([]task.Task, []PendingAction) {
	inRound := seqSet(queue)
	current := seqSet(m.actions)

	// Replay failures stay queued unless they were cancelled meanwhile.
	cancelled := make(map[int64]bool)
	for seq := range inRound {
		if !current[seq] {
			cancelled[seq] = true
		}
	}
	actions := withoutSeqs(rep.kept, cancelled)

	// Actions enqueued during the round go behind them.
	var fresh []PendingAction
	for _, a := range m.actions {
		if !inRound[a.Seq] {
			fresh = append(fresh, remapAction(a, rep.remap))
		}
	}

	// Tasks deleted locally while the round ran.
	stillLocal := make(map[string]bool, len(m.tasks))
	for _, t := range m.tasks {
		stillLocal[t.ID] = true
	}
	removed := make(map[string]bool)
	for _, t := range local {
		if !stillLocal[t.ID] {
			removed[t.ID] = true
		}
	}

	// A CREATE acknowledged without an id leaves nothing to address the
	// temporary copy by; the next fetch brings the server's copy instead.
	if len(rep.unassigned) > 0 {
		for id := range rep.unassigned {
			removed[id] = true
		}
		kept := fresh[:0]
		for _, a := range fresh {
			if rep.unassigned[a.TaskID()] {
				m.logger.Printf("WARNING: dropping %s #%d: task %s was uploaded without an id", a.Type, a.Seq, a.TaskID())
				continue
			}
			kept = append(kept, a)
		}
		fresh = kept
	}

	// An upload that landed after its task was deleted locally needs a
	// server-side delete.
	temps := make([]string, 0, len(rep.remap))
	for temp := range rep.remap {
		temps = append(temps, temp)
	}
	sort.Strings(temps)
	for _, temp := range temps {
		if !removed[temp] {
			continue
		}
		perm := rep.remap[temp]
		a, err := newAction(ActionDeleteTask, perm, DeletePayload{ID: perm}, m.now())
		if err != nil {
			continue
		}
		a = m.stampLocked(a)
		fresh = append(fresh, a)
		m.logger.Printf("Task %s was deleted during sync, queued delete for %s", temp, perm)
	}

	tasks := make([]task.Task, 0, len(merged))
	seen := make(map[string]bool, len(merged))
	for _, t := range merged {
		if removed[t.ID] {
			continue
		}
		if perm, ok := rep.remap[t.ID]; ok {
			t.Rename(perm)
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		tasks = append(tasks, t)
	}

	// Local edits made during the round win over the merged copy.
	if len(fresh) > 0 {
		latest := task.CloneAll(m.tasks)
		renameTasks(latest, rep.remap)
		byID := task.Index(latest)
		idx := task.Index(tasks)
		for _, a := range fresh {
			if a.Type == ActionDeleteTask {
				continue
			}
			j, ok := byID[a.TaskID()]
			if !ok {
				continue
			}
			if i, ok := idx[a.TaskID()]; ok {
				tasks[i] = latest[j].Clone()
				continue
			}
			idx[a.TaskID()] = len(tasks)
			tasks = append(tasks, latest[j].Clone())
		}
	}

	actions = append(actions, fresh...)

	// Deleted tasks must not come back with a server copy fetched before
	// the delete went through.
	gone := make(map[string]bool, len(rep.deleted))
	for id := range rep.deleted {
		gone[id] = true
	}
	for _, a := range actions {
		if a.Type == ActionDeleteTask {
			gone[a.TaskID()] = true
		}
	}
	if len(gone) > 0 {
		kept := tasks[:0]
		for _, t := range tasks {
			if !gone[t.ID] {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}

	clearConfirmedEdits(tasks, actions)
	return tasks, actions
}

// clearConfirmedEdits drops the local modification time of tasks with no
// queued action. Once the server has accepted an edit, the local copy must
// not keep winning conflicts against later server changes.
func clearConfirmedEdits(tasks []task.Task, actions []PendingAction) {
	queued := make(map[string]bool, len(actions))
	for _, a := range actions {
		queued[a.TaskID()] = true
	}
	for i := range tasks {
		if !queued[tasks[i].ID] {
			tasks[i].UpdatedAt = time.Time{}
		}
	}
}
