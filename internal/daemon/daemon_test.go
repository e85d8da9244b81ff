package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldops/fieldtask/internal/api"
	"github.com/fieldops/fieldtask/internal/api/apitest"
	"github.com/fieldops/fieldtask/internal/connectivity"
	"github.com/fieldops/fieldtask/internal/kv"
	"github.com/fieldops/fieldtask/internal/notify"
	"github.com/fieldops/fieldtask/internal/offline"
	"github.com/fieldops/fieldtask/internal/task"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newDirManager opens a manager over a directory store, as the daemon and
// the CLI each do.
func newDirManager(t *testing.T, dir string, client offline.Client, online bool) *offline.Manager {
	t.Helper()
	storage, err := kv.OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir() error = %v", err)
	}
	store := offline.NewLocalStore(storage, nil, quietLogger())
	opts := offline.Options{Online: online, Logger: quietLogger()}
	if client != nil {
		opts.Client = client
	}
	m, err := offline.NewManager(store, opts)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func newAPIClient(t *testing.T, srv *apitest.Server) *api.Client {
	t.Helper()
	c, err := api.New(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// runDaemon starts d in the background and stops it when the test ends.
func runDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func TestNew_RequiresManager(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("New(nil manager) succeeded")
	}
}

func TestDaemon_PicksUpActionsFromAnotherProcess(t *testing.T) {
	dir := t.TempDir()
	srv := apitest.NewServer()
	defer srv.Close()

	daemonSide := newDirManager(t, dir, newAPIClient(t, srv), true)
	d, err := New(daemonSide, nil, nil, &Config{
		DebounceInterval: 20 * time.Millisecond,
		WatchDir:         dir,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	runDaemon(t, d)
	waitFor(t, "watcher", d.watcher.IsRunning)
	waitFor(t, "startup round", func() bool {
		info := daemonSide.SyncInfo()
		return info.LastSync != nil && !info.SyncInProgress
	})

	// The CLI holds its own manager over the same directory.
	cliSide := newDirManager(t, dir, nil, false)
	if _, err := cliSide.AddTaskOffline(task.Task{Title: "Replace intake filter", Location: "Pump house"}); err != nil {
		t.Fatalf("AddTaskOffline() error = %v", err)
	}

	waitFor(t, "task uploaded", func() bool { return len(srv.Tasks()) == 1 })
	waitFor(t, "queue drained", func() bool { return daemonSide.PendingCount() == 0 })

	tasks := daemonSide.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("daemon holds %d tasks, want 1", len(tasks))
	}
	if tasks[0].IsLocal() {
		t.Errorf("task id %q still local after sync", tasks[0].ID)
	}
	if tasks[0].Title != "Replace intake filter" {
		t.Errorf("Title = %q", tasks[0].Title)
	}
}

func TestDaemon_OfflineKeepsQueue(t *testing.T) {
	dir := t.TempDir()
	srv := apitest.NewServer()
	defer srv.Close()

	daemonSide := newDirManager(t, dir, newAPIClient(t, srv), false)
	d, err := New(daemonSide, nil, nil, &Config{
		DebounceInterval: 20 * time.Millisecond,
		WatchDir:         dir,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	runDaemon(t, d)
	waitFor(t, "watcher", d.watcher.IsRunning)

	cliSide := newDirManager(t, dir, nil, false)
	if _, err := cliSide.AddTaskOffline(task.Task{Title: "Grease bearings"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "reload", func() bool { return daemonSide.PendingCount() == 1 })

	time.Sleep(100 * time.Millisecond)
	if got := len(srv.Tasks()); got != 0 {
		t.Errorf("server holds %d tasks while offline, want 0", got)
	}
}

func TestDaemon_ReconnectSyncsAndNotifies(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()

	m, err := offline.NewManager(
		offline.NewLocalStore(kv.NewMemory(), nil, quietLogger()),
		offline.Options{Client: newAPIClient(t, srv), Logger: quietLogger()},
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddTaskOffline(task.Task{Title: "Check fire extinguishers"}); err != nil {
		t.Fatal(err)
	}

	hub := notify.NewHub(&notify.Config{Port: 0, Logger: quietLogger()})
	received := make(chan notify.MessageType, 16)
	hub.Subscribe(func(msg notify.Message) { received <- msg.Type })

	src := connectivity.NewManualSource(false)
	monitor := connectivity.NewMonitor(src, m, hub, quietLogger())

	d, err := New(m, monitor, hub, &Config{Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	runDaemon(t, d)
	waitFor(t, "monitor", monitor.IsRunning)

	src.Set(true)

	if got := <-received; got != notify.MessageTypeOnline {
		t.Errorf("first message = %q, want online", got)
	}
	waitFor(t, "upload", func() bool { return len(srv.Tasks()) == 1 })
	waitFor(t, "queue drained", func() bool { return m.PendingCount() == 0 })
}

func TestStoreWatcher_ReportsKeyWrites(t *testing.T) {
	dir := t.TempDir()
	storage, err := kv.OpenDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	sw, err := NewStoreWatcher()
	if err != nil {
		t.Fatalf("NewStoreWatcher() error = %v", err)
	}
	if sw.IsRunning() {
		t.Error("new watcher is running")
	}
	if err := sw.Start(dir); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sw.Stop()

	if err := sw.Start(dir); err == nil {
		t.Error("second Start() succeeded")
	}

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := storage.Set(offline.KeyPendingActions, []byte("[]")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-sw.Events():
		if ev.Key != offline.KeyPendingActions {
			t.Errorf("Key = %q, want %q", ev.Key, offline.KeyPendingActions)
		}
		if ev.Op != OpWrite {
			t.Errorf("Op = %s, want write", ev.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for key write")
	}
}

func TestStoreWatcher_StopWithoutStart(t *testing.T) {
	sw, err := NewStoreWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestEventOp_String(t *testing.T) {
	tests := []struct {
		op   EventOp
		want string
	}{
		{OpWrite, "write"},
		{OpDelete, "delete"},
		{EventOp(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("EventOp(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
