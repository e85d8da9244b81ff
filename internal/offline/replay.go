package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldops/fieldtask/internal/task"
)

// replayOutcome collects what a replay pass confirmed and what it left.
type replayOutcome struct {
	// kept holds failed or skipped actions in their original order, with
	// ids already rewritten through remap.
	kept []PendingAction

	// remap maps local-temporary task ids to the permanent ids the server
	// assigned during this pass.
	remap map[string]string

	// deleted holds task ids the server confirmed as deleted.
	deleted map[string]bool

	// unassigned holds local-temporary ids whose CREATE the server
	// acknowledged without returning a permanent id.
	unassigned map[string]bool

	succeeded int
	failed    int
	dropped   int
}

// replay dispatches actions to the server in FIFO order, one at a time.
// A failed action is kept for the next round; its failure does not stop the
// actions behind it, except those targeting a task whose CREATE failed,
// which are kept without being sent.
func (m *Manager) replay(ctx context.Context, actions []PendingAction) replayOutcome {
	out := replayOutcome{
		remap:      make(map[string]string),
		deleted:    make(map[string]bool),
		unassigned: make(map[string]bool),
	}
	blocked := make(map[string]bool)

	for _, a := range actions {
		if a.Type != ActionCreateTask && blocked[a.TaskID()] {
			m.logger.Printf("Holding %s #%d: task %s is not on the server yet", a.Type, a.Seq, a.TaskID())
			out.kept = append(out.kept, a)
			continue
		}
		if a.Type != ActionCreateTask && out.unassigned[a.TaskID()] {
			m.logger.Printf("WARNING: dropping %s #%d: task %s was uploaded without an id", a.Type, a.Seq, a.TaskID())
			out.dropped++
			continue
		}

		err := m.dispatch(ctx, a, &out)
		switch {
		case err == nil:
			out.succeeded++
		case isPayloadError(err):
			m.logger.Printf("ERROR: dropping %s #%d with unreadable payload: %v", a.Type, a.Seq, err)
			out.dropped++
		default:
			if a.Type == ActionCreateTask {
				blocked[a.LocalID] = true
			}
			a.Attempts++
			a.LastError = err.Error()
			out.kept = append(out.kept, a)
			out.failed++
			m.logger.Printf("WARNING: failed to replay %s #%d (attempt %d): %v", a.Type, a.Seq, a.Attempts, err)
		}
	}

	for i := range out.kept {
		out.kept[i] = remapAction(out.kept[i], out.remap)
	}
	return out
}

// dispatch sends one action, recording remaps and deletions in out.
func (m *Manager) dispatch(ctx context.Context, a PendingAction, out *replayOutcome) error {
	target := a.TaskID()
	if id, ok := out.remap[target]; ok {
		target = id
	}

	switch a.Type {
	case ActionCreateTask:
		t, err := a.Task()
		if err != nil {
			return payloadError{err}
		}
		created, err := m.client.CreateTask(ctx, t)
		if err != nil {
			return fmt.Errorf("%w: failed to create task %s: %w", ErrNetwork, a.LocalID, err)
		}
		switch {
		case created.ID == "":
			out.unassigned[a.LocalID] = true
			m.logger.Printf("Task %s uploaded, server returned no id", a.LocalID)
		case created.ID != a.LocalID:
			out.remap[a.LocalID] = created.ID
			m.logger.Printf("Task %s is now %s", a.LocalID, created.ID)
		}

	case ActionUpdateTask:
		u, err := a.Update()
		if err != nil {
			return payloadError{err}
		}
		if err := m.client.UpdateTask(ctx, target, u); err != nil {
			return fmt.Errorf("%w: failed to update task %s: %w", ErrNetwork, target, err)
		}

	case ActionDeleteTask:
		if err := m.client.DeleteTask(ctx, target); err != nil {
			return fmt.Errorf("%w: failed to delete task %s: %w", ErrNetwork, target, err)
		}
		out.deleted[target] = true

	case ActionAddNote:
		p, err := a.Note()
		if err != nil {
			return payloadError{err}
		}
		if _, err := m.client.AddNote(ctx, target, p.Content); err != nil {
			return fmt.Errorf("%w: failed to add note to task %s: %w", ErrNetwork, target, err)
		}

	default:
		return payloadError{fmt.Errorf("unknown action type %q", a.Type)}
	}
	return nil
}

// remapAction rewrites the task id an action targets when that task was
// assigned a permanent id.
func remapAction(a PendingAction, remap map[string]string) PendingAction {
	if len(remap) == 0 {
		return a
	}

	if a.Type == ActionAddNote {
		p, err := a.Note()
		if err != nil {
			return a
		}
		id, ok := remap[p.TaskID]
		if !ok {
			return a
		}
		p.TaskID = id
		if data, err := json.Marshal(p); err == nil {
			a.Data = data
		}
		return a
	}

	if id, ok := remap[a.LocalID]; ok && a.Type != ActionCreateTask {
		a.LocalID = id
		if a.Type == ActionDeleteTask {
			if data, err := json.Marshal(DeletePayload{ID: id}); err == nil {
				a.Data = data
			}
		}
	}
	return a
}

// payloadError marks an action whose stored payload cannot be decoded.
// Retrying such an action can never succeed.
type payloadError struct{ err error }

func (e payloadError) Error() string { return e.err.Error() }
func (e payloadError) Unwrap() error { return e.err }

func isPayloadError(err error) bool {
	_, ok := err.(payloadError)
	return ok
}

// renameTasks applies remap to a task collection in place.
func renameTasks(tasks []task.Task, remap map[string]string) {
	for i := range tasks {
		if id, ok := remap[tasks[i].ID]; ok {
			tasks[i].Rename(id)
		}
	}
}
