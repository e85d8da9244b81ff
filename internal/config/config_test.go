package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  url: https://tasks.example.com
  timeout: 10s
store:
  backend: dir
  path: /var/lib/fieldtask
sync:
  interval: 1m
notify:
  port: 9000
user:
  id: tech-7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Server.URL = "https://tasks.example.com"
	want.Server.Timeout = 10 * time.Second
	want.Store = StoreConfig{Backend: "dir", Path: "/var/lib/fieldtask"}
	want.Sync.Interval = time.Minute
	want.Notify.Port = 9000
	want.User.ID = "tech-7"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  url: https://file.example.com\n")
	t.Setenv("FT_SERVER_URL", "https://env.example.com")
	t.Setenv("FT_SYNC_INTERVAL", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "https://env.example.com" {
		t.Errorf("Server.URL = %q, want env value", cfg.Server.URL)
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("Sync.Interval = %v, want 30s", cfg.Sync.Interval)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantMsg string
	}{
		{
			name:    "missing explicit file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantMsg: "failed to read config",
		},
		{
			name:    "unknown backend",
			path:    func(t *testing.T) string { return writeConfig(t, "store:\n  backend: postgres\n") },
			wantMsg: "invalid store.backend",
		},
		{
			name:    "port out of range",
			path:    func(t *testing.T) string { return writeConfig(t, "notify:\n  port: 70000\n") },
			wantMsg: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestConfig_StorePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name  string
		store StoreConfig
		want  string
	}{
		{name: "explicit", store: StoreConfig{Backend: "sqlite", Path: "/tmp/x.db"}, want: "/tmp/x.db"},
		{name: "sqlite default", store: StoreConfig{Backend: "sqlite"}, want: filepath.Join(home, ".local", "share", "fieldtask", "fieldtask.db")},
		{name: "dir default", store: StoreConfig{Backend: "dir"}, want: filepath.Join(home, ".local", "share", "fieldtask", "store")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store = tt.store
			got, err := cfg.StorePath()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("StorePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_ProbeURL(t *testing.T) {
	cfg := Default()
	if got := cfg.ProbeURL(); got != "" {
		t.Errorf("ProbeURL() without server = %q, want empty", got)
	}

	cfg.Server.URL = "https://tasks.example.com/"
	if got := cfg.ProbeURL(); got != "https://tasks.example.com/health" {
		t.Errorf("ProbeURL() = %q", got)
	}

	cfg.Probe.URL = "https://status.example.com/ping"
	if got := cfg.ProbeURL(); got != "https://status.example.com/ping" {
		t.Errorf("ProbeURL() with override = %q", got)
	}
}
