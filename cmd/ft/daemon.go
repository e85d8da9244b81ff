package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldops/fieldtask/internal/connectivity"
	"github.com/fieldops/fieldtask/internal/daemon"
	"github.com/fieldops/fieldtask/internal/kv"
	"github.com/fieldops/fieldtask/internal/notify"
	"github.com/fieldops/fieldtask/internal/offline"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Probe the server and sync on every reconnect
  2. Pick up changes queued by other ft commands (dir store only)
  3. Sync periodically while online (sync.interval)
  4. Serve notifications on ws://localhost:<notify.port>/ws

WebSocket messages:
- online: server reachable again, with the number of queued changes
- offline: server became unreachable
- sync_complete / sync_failed: outcome of a round

Logs go to stderr, or to log.file with rotation when configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.URL == "" {
			return fmt.Errorf("no server configured: set server.url or pass --server")
		}

		out := daemonLogOutput()
		if c, ok := out.(io.Closer); ok {
			defer c.Close()
		}
		logger := func(prefix string) *log.Logger {
			return log.New(out, prefix, log.LstdFlags)
		}

		port := cfg.Notify.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		var a *app
		hub := notify.NewHub(&notify.Config{
			Port:   port,
			Logger: logger("[notify] "),
			Status: func() offline.SyncInfo { return a.manager.SyncInfo() },
		})

		a, err := openApp(logger("[sync] "), hub)
		if err != nil {
			return err
		}
		defer a.Close()

		probe, err := connectivity.NewProbeSource(connectivity.ProbeConfig{
			URL:      cfg.ProbeURL(),
			Interval: cfg.Probe.Interval,
			Timeout:  cfg.Server.Timeout,
			Logger:   logger("[probe] "),
		})
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := probe.Start(ctx); err != nil {
			return err
		}
		defer probe.Stop()

		monitor := connectivity.NewMonitor(probe, a.manager, hub, logger("[monitor] "))

		dcfg := daemon.DefaultConfig()
		dcfg.SyncInterval = cfg.Sync.Interval
		dcfg.Logger = logger("[daemon] ")
		if strings.EqualFold(cfg.Store.Backend, kv.BackendDir) {
			dcfg.WatchDir, _ = cfg.StorePath()
		}

		d, err := daemon.New(a.manager, monitor, hub, dcfg)
		if err != nil {
			return err
		}

		fmt.Printf("Sync daemon started for %s\n", cfg.Server.URL)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", hub.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			return err
		}
		fmt.Println("Sync daemon stopped")
		return nil
	},
}

// daemonLogOutput returns the rotating log file when log.file is set.
func daemonLogOutput() io.Writer {
	if cfg.Log.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 0, "Notification port (overrides notify.port)")
	rootCmd.AddCommand(daemonCmd)
}
