// Package task defines the maintenance task records shared by the local store,
// the sync engine and the server API client.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers generated on the client before the server
// has acknowledged the record. A task carrying this prefix has never been
// uploaded.
const LocalIDPrefix = "temp_"

// Task is a unit of maintenance work.
type Task struct {
	// ===== Core Identification =====
	ID string `json:"id" yaml:"id"`

	// ===== Task Content =====
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Type        string `json:"type" yaml:"type"`         // inspection, repair, maintenance, ...
	Priority    string `json:"priority" yaml:"priority"` // low, medium, high, critical
	Status      string `json:"status" yaml:"status"`     // pending, in_progress, completed, ...

	// ===== Scheduling =====
	Location          string     `json:"location" yaml:"location"`
	EstimatedDuration int        `json:"estimatedDuration" yaml:"estimatedDuration"` // minutes
	DueDate           *time.Time `json:"dueDate" yaml:"dueDate"`

	// ===== Timestamps (conflict resolution) =====
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`

	// ===== Assignment =====
	AssignedTo *string `json:"assignedTo" yaml:"assignedTo"`

	RequiredTools []string     `json:"requiredTools" yaml:"requiredTools"`
	Notes         []Note       `json:"notes" yaml:"notes"`
	Attachments   []Attachment `json:"attachments" yaml:"attachments"`
}

// Note is an annotation on a Task. TaskID is a back-reference only.
type Note struct {
	ID        string    `json:"id" yaml:"id"`
	TaskID    string    `json:"taskId" yaml:"taskId"`
	UserID    string    `json:"userId" yaml:"userId"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Attachment references a file uploaded against a task.
type Attachment struct {
	ID          string    `json:"id" yaml:"id"`
	Filename    string    `json:"filename" yaml:"filename"`
	URL         string    `json:"url" yaml:"url"`
	ContentType string    `json:"contentType" yaml:"contentType"`
	Size        int64     `json:"size" yaml:"size"`
	UploadedAt  time.Time `json:"uploadedAt" yaml:"uploadedAt"`
}

// NewLocalID returns a fresh local-temporary identifier. Identifiers are
// never reused, so a temporary id seen in a collection always refers to the
// same not-yet-uploaded record.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was generated on the client and is still
// awaiting a permanent server id.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// IsLocal reports whether the task has never been acknowledged by the server.
func (t *Task) IsLocal() bool {
	return IsLocalID(t.ID)
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.EstimatedDuration < 0 {
		return fmt.Errorf("estimated duration must not be negative (got %d)", t.EstimatedDuration)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults(now time.Time) {
	if t.Status == "" {
		t.Status = "pending"
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.Type == "" {
		t.Type = "maintenance"
	}
	if t.RequiredTools == nil {
		t.RequiredTools = []string{}
	}
	if t.Notes == nil {
		t.Notes = []Note{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}

// Touch records a local modification.
func (t *Task) Touch(now time.Time) {
	t.UpdatedAt = now
}

// Rename replaces the task id and rewrites the back-reference of every note.
// It is used once the server has assigned a permanent id to a local task.
func (t *Task) Rename(id string) {
	t.ID = id
	for i := range t.Notes {
		t.Notes[i].TaskID = id
	}
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		out.AssignedTo = &a
	}
	if t.RequiredTools != nil {
		out.RequiredTools = append([]string(nil), t.RequiredTools...)
		if len(t.RequiredTools) == 0 {
			out.RequiredTools = []string{}
		}
	}
	if t.Notes != nil {
		out.Notes = append(make([]Note, 0, len(t.Notes)), t.Notes...)
	}
	if t.Attachments != nil {
		out.Attachments = append(make([]Attachment, 0, len(t.Attachments)), t.Attachments...)
	}
	return out
}

// CloneAll deep-copies a collection. A nil input yields an empty slice.
func CloneAll(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Index maps task id to position in tasks.
func Index(tasks []Task) map[string]int {
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		idx[t.ID] = i
	}
	return idx
}
