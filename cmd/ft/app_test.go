package main

import (
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/fieldops/fieldtask/internal/config"
	"github.com/fieldops/fieldtask/internal/kv"
	"github.com/fieldops/fieldtask/internal/offline"
	"github.com/fieldops/fieldtask/internal/task"
)

func TestResolveTaskID(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	m, err := offline.NewManager(offline.NewLocalStore(kv.NewMemory(), nil, quiet), offline.Options{Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	first, _ := m.AddTaskOffline(task.Task{Title: "one"})
	second, _ := m.AddTaskOffline(task.Task{Title: "two"})

	if got, err := resolveTaskID(m, first); err != nil || got != first {
		t.Errorf("resolveTaskID(full) = %q, %v", got, err)
	}
	if got, err := resolveTaskID(m, second[:len(second)-4]); err != nil || got != second {
		t.Errorf("resolveTaskID(prefix) = %q, %v", got, err)
	}
	if _, err := resolveTaskID(m, task.LocalIDPrefix); err == nil {
		t.Error("ambiguous prefix resolved")
	}
	if _, err := resolveTaskID(m, "999"); !errors.Is(err, offline.ErrTaskNotFound) {
		t.Errorf("unknown id error = %v, want ErrTaskNotFound", err)
	}
}

func TestFilterTasks(t *testing.T) {
	tasks := []task.Task{
		{ID: "1", Status: "pending"},
		{ID: "2", Status: "completed"},
		{ID: "3", Status: "Pending"},
	}
	if got := filterTasks(tasks, ""); len(got) != 3 {
		t.Errorf("no filter returned %d tasks", len(got))
	}
	got := filterTasks(tasks, "pending")
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("filter pending = %+v", got)
	}
}

func TestOpenApp(t *testing.T) {
	cfg = config.Default()
	cfg.Store.Backend = kv.BackendDir
	cfg.Store.Path = filepath.Join(t.TempDir(), "store")
	cfg.Server.URL = "http://127.0.0.1:1"
	t.Cleanup(func() { cfg = nil })

	a, err := openApp(nil, nil)
	if err != nil {
		t.Fatalf("openApp() error = %v", err)
	}
	defer a.Close()

	if a.client == nil {
		t.Error("client not built for a configured server")
	}
	if a.manager.IsOnline() {
		t.Error("manager starts online")
	}
	if _, err := a.manager.AddTaskOffline(task.Task{Title: "persisted"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := openApp(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if got := reopened.manager.PendingCount(); got != 1 {
		t.Errorf("PendingCount() after reopen = %d, want 1", got)
	}
}
