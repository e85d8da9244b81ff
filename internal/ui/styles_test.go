package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldops/fieldtask/internal/task"
)

func TestShortID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"42", "42"},
		{"temp_1234", "temp_1234"},
		{"temp_0f8e2c1a-9d9b-4b6a-8e0e-0c9a7b5d1f00", "temp_0f8e2c1a"},
	}
	for _, tt := range tests {
		if got := shortID(tt.id); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestTaskTable(t *testing.T) {
	due := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	tasks := []task.Task{
		{ID: "17", Title: "Inspect boiler", Status: "pending", Priority: "high", Location: "Basement", DueDate: &due},
		{ID: "temp_abcdef12-0000", Title: "Replace belt", Status: "pending", Priority: "low"},
	}

	out := TaskTable(tasks)
	for _, want := range []string{"TITLE", "Inspect boiler", "Replace belt", "Basement", "temp_abcdef12"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatDue(t *testing.T) {
	if got := FormatDue(nil); got != "-" {
		t.Errorf("FormatDue(nil) = %q, want -", got)
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := FormatAgo(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("FormatAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
