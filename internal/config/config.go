// Package config loads fieldtask settings from a YAML file, FT_ environment
// variables and built-in defaults, in increasing order of precedence below
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldops/fieldtask/internal/kv"
)

const (
	appName    = "fieldtask"
	envPrefix  = "FT"
	configName = "config"
	configType = "yaml"
)

// Config is the full set of settings.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Probe  ProbeConfig  `mapstructure:"probe"`
	Notify NotifyConfig `mapstructure:"notify"`
	Log    LogConfig    `mapstructure:"log"`
	User   UserConfig   `mapstructure:"user"`
}

// ServerConfig locates the task API.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the durable backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // sqlite, dir or memory
	Path    string `mapstructure:"path"`
}

// SyncConfig tunes the daemon's rounds.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ProbeConfig tunes the reachability probe.
type ProbeConfig struct {
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
}

// NotifyConfig configures the notification hub.
type NotifyConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures daemon log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// UserConfig names the local user when no login session is cached.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Timeout: 30 * time.Second},
		Store:  StoreConfig{Backend: kv.BackendSQLite},
		Sync:   SyncConfig{Interval: 5 * time.Minute},
		Probe:  ProbeConfig{Interval: 15 * time.Second},
		Notify: NotifyConfig{Port: 8765},
		Log:    LogConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// DefaultPath returns ~/.config/fieldtask/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName, configName+"."+configType), nil
}

// DataDir returns ~/.local/share/fieldtask, where stores live by default.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// Load reads settings. An empty path searches ~/.config/fieldtask and the
// working directory and tolerates a missing file; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		if p, err := DefaultPath(); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.token", d.Server.Token)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("probe.url", d.Probe.URL)
	v.SetDefault("probe.interval", d.Probe.Interval)
	v.SetDefault("notify.port", d.Notify.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("user.id", d.User.ID)
}

// Validate checks the settings for values no component can use.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case kv.BackendSQLite, kv.BackendDir, kv.BackendMemory:
	default:
		return fmt.Errorf("invalid store.backend %q (want sqlite, dir or memory)", c.Store.Backend)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}
	if c.Notify.Port < 0 || c.Notify.Port > 65535 {
		return fmt.Errorf("notify.port %d out of range", c.Notify.Port)
	}
	return nil
}

// StorePath returns the configured store location, or the default one
// for the backend under DataDir.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	switch strings.ToLower(c.Store.Backend) {
	case kv.BackendDir:
		return filepath.Join(dir, "store"), nil
	default:
		return filepath.Join(dir, appName+".db"), nil
	}
}

// ProbeURL returns the reachability endpoint: probe.url if set, else the
// server's /health.
func (c *Config) ProbeURL() string {
	if c.Probe.URL != "" {
		return c.Probe.URL
	}
	if c.Server.URL == "" {
		return ""
	}
	return strings.TrimRight(c.Server.URL, "/") + "/health"
}
