package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldops/fieldtask/internal/task"
)

// ActionType identifies the kind of mutation a PendingAction records.
type ActionType string

const (
	// ActionCreateTask uploads a task created while offline.
	ActionCreateTask ActionType = "CREATE_TASK"

	// ActionUpdateTask sends a partial update for an existing task.
	ActionUpdateTask ActionType = "UPDATE_TASK"

	// ActionDeleteTask deletes a task on the server.
	ActionDeleteTask ActionType = "DELETE_TASK"

	// ActionAddNote appends a note to a task on the server.
	ActionAddNote ActionType = "ADD_NOTE"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreateTask, ActionUpdateTask, ActionDeleteTask, ActionAddNote:
		return true
	}
	return false
}

// PendingAction is a mutation intent awaiting server confirmation.
//
// Seq is the action's identity within the queue. Removal after a successful
// dispatch matches on Seq only, so two actions with identical payloads are
// still removed independently.
type PendingAction struct {
	Seq       int64           `json:"seq"`
	Type      ActionType      `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`

	// LocalID is the task id (or note id for ADD_NOTE) the action concerns.
	LocalID string `json:"localId"`

	// Failure visibility for actions that keep being retried.
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// NotePayload is the data of an ADD_NOTE action.
type NotePayload struct {
	TaskID  string `json:"taskId"`
	Content string `json:"content"`
}

// DeletePayload is the data of a DELETE_TASK action.
type DeletePayload struct {
	ID string `json:"id"`
}

// TaskID returns the id of the task the action targets. For ADD_NOTE this
// is read from the payload since LocalID names the note.
func (a PendingAction) TaskID() string {
	if a.Type == ActionAddNote {
		var p NotePayload
		if err := json.Unmarshal(a.Data, &p); err == nil && p.TaskID != "" {
			return p.TaskID
		}
	}
	return a.LocalID
}

// Task decodes a CREATE_TASK payload.
func (a PendingAction) Task() (task.Task, error) {
	var t task.Task
	if err := json.Unmarshal(a.Data, &t); err != nil {
		return task.Task{}, fmt.Errorf("failed to decode %s payload: %w", a.Type, err)
	}
	return t, nil
}

// Update decodes an UPDATE_TASK payload.
func (a PendingAction) Update() (task.Update, error) {
	var u task.Update
	if err := json.Unmarshal(a.Data, &u); err != nil {
		return task.Update{}, fmt.Errorf("failed to decode %s payload: %w", a.Type, err)
	}
	return u, nil
}

// Note decodes an ADD_NOTE payload.
func (a PendingAction) Note() (NotePayload, error) {
	var p NotePayload
	if err := json.Unmarshal(a.Data, &p); err != nil {
		return NotePayload{}, fmt.Errorf("failed to decode %s payload: %w", a.Type, err)
	}
	return p, nil
}

func newAction(typ ActionType, localID string, payload any, now time.Time) (PendingAction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return PendingAction{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return PendingAction{
		Type:      typ,
		Data:      data,
		Timestamp: now,
		LocalID:   localID,
	}, nil
}

// nextSeq returns a sequence number greater than every seq in actions.
func nextSeq(actions []PendingAction) int64 {
	var highest int64
	for _, a := range actions {
		if a.Seq > highest {
			highest = a.Seq
		}
	}
	return highest + 1
}

// normalizeSeqs assigns sequence numbers to actions persisted without one
// and breaks duplicates, preserving order. It reports whether anything
// changed.
func normalizeSeqs(actions []PendingAction) bool {
	changed := false
	seen := make(map[int64]bool, len(actions))
	next := nextSeq(actions)
	for i := range actions {
		if actions[i].Seq <= 0 || seen[actions[i].Seq] {
			actions[i].Seq = next
			next++
			changed = true
		}
		seen[actions[i].Seq] = true
	}
	return changed
}

// withoutSeqs returns actions minus those whose seq is in drop, in order.
func withoutSeqs(actions []PendingAction, drop map[int64]bool) []PendingAction {
	out := make([]PendingAction, 0, len(actions))
	for _, a := range actions {
		if !drop[a.Seq] {
			out = append(out, a)
		}
	}
	return out
}
