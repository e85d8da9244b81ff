package task

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTask_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid task",
			task: Task{
				ID:        "42",
				Title:     "Replace pump seal",
				CreatedAt: now,
			},
		},
		{
			name:    "missing id",
			task:    Task{Title: "Test", CreatedAt: now},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "blank title",
			task:    Task{ID: "42", Title: "   ", CreatedAt: now},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			task:    Task{ID: "42", Title: strings.Repeat("x", 501), CreatedAt: now},
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name:    "negative duration",
			task:    Task{ID: "42", Title: "Test", EstimatedDuration: -5, CreatedAt: now},
			wantErr: true,
			errMsg:  "estimated duration must not be negative",
		},
		{
			name:    "missing createdAt",
			task:    Task{ID: "42", Title: "Test"},
			wantErr: true,
			errMsg:  "createdAt is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestNewLocalID(t *testing.T) {
	a := NewLocalID()
	b := NewLocalID()

	if !IsLocalID(a) || !IsLocalID(b) {
		t.Fatalf("generated ids %q, %q should carry prefix %q", a, b, LocalIDPrefix)
	}
	if a == b {
		t.Errorf("NewLocalID() returned the same id twice: %q", a)
	}
	if IsLocalID("6512bd43d9caa6e02c990b0a") {
		t.Error("server-style id must not be reported as local")
	}
}

func TestTask_SetDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := Task{Title: "Inspect valve"}
	task.SetDefaults(now)

	if task.Status != "pending" {
		t.Errorf("Status = %q, want pending", task.Status)
	}
	if task.Priority != "medium" {
		t.Errorf("Priority = %q, want medium", task.Priority)
	}
	if task.Type != "maintenance" {
		t.Errorf("Type = %q, want maintenance", task.Type)
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", task.CreatedAt, now)
	}
	if task.RequiredTools == nil || task.Notes == nil || task.Attachments == nil {
		t.Error("SetDefaults should initialise slices")
	}
}

func TestTask_Rename(t *testing.T) {
	task := Task{
		ID: "temp_1",
		Notes: []Note{
			{ID: "n1", TaskID: "temp_1"},
			{ID: "n2", TaskID: "temp_1"},
		},
	}
	task.Rename("99")

	if task.ID != "99" {
		t.Errorf("ID = %q, want 99", task.ID)
	}
	for _, n := range task.Notes {
		if n.TaskID != "99" {
			t.Errorf("note %s TaskID = %q, want 99", n.ID, n.TaskID)
		}
	}
}

func TestTask_CloneIsDeep(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	orig := Task{
		ID:            "1",
		DueDate:       &due,
		RequiredTools: []string{"wrench"},
		Notes:         []Note{{ID: "n1", Content: "ok"}},
	}
	cp := orig.Clone()
	cp.RequiredTools[0] = "hammer"
	cp.Notes[0].Content = "changed"
	*cp.DueDate = due.Add(time.Hour)

	if orig.RequiredTools[0] != "wrench" {
		t.Error("clone shares RequiredTools with original")
	}
	if orig.Notes[0].Content != "ok" {
		t.Error("clone shares Notes with original")
	}
	if !orig.DueDate.Equal(due) {
		t.Error("clone shares DueDate with original")
	}
}

func TestTask_JSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	assignee := "user-7"
	orig := Task{
		ID:                "6512bd43",
		Title:             "Lubricate conveyor",
		Description:       "Line 3",
		Type:              "maintenance",
		Priority:          "high",
		Status:            "in_progress",
		Location:          "Plant B",
		EstimatedDuration: 45,
		DueDate:           &now,
		CreatedAt:         now,
		AssignedTo:        &assignee,
		RequiredTools:     []string{"grease gun", "rag"},
		Notes:             []Note{{ID: "n1", TaskID: "6512bd43", UserID: "user-7", Content: "started", CreatedAt: now}},
		Attachments:       []Attachment{{ID: "a1", Filename: "photo.jpg", Size: 1024, UploadedAt: now}},
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	for _, field := range []string{`"estimatedDuration":45`, `"requiredTools"`, `"assignedTo":"user-7"`, `"createdAt"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("encoded task missing %s: %s", field, data)
		}
	}

	var got Task
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_Apply(t *testing.T) {
	title := "New title"
	status := "completed"
	dur := 90
	task := Task{ID: "1", Title: "Old", Status: "pending", Priority: "low"}

	upd := Update{Title: &title, Status: &status, EstimatedDuration: &dur, RequiredTools: []string{"ladder"}}
	if upd.IsEmpty() {
		t.Fatal("IsEmpty() = true for a non-empty update")
	}
	upd.Apply(&task)

	if task.Title != title || task.Status != status || task.EstimatedDuration != dur {
		t.Errorf("Apply() did not copy set fields: %+v", task)
	}
	if task.Priority != "low" {
		t.Errorf("Apply() changed an unset field: Priority = %q", task.Priority)
	}
	if diff := cmp.Diff([]string{"ladder"}, task.RequiredTools); diff != "" {
		t.Errorf("RequiredTools mismatch (-want +got):\n%s", diff)
	}
	if !(Update{}).IsEmpty() {
		t.Error("zero Update should be empty")
	}
}
