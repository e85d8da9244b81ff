package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fieldops/fieldtask/internal/connectivity"
	"github.com/fieldops/fieldtask/internal/offline"
	"github.com/fieldops/fieldtask/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize with the task server",
	Long: `Run one sync round.

The round:
  1. Checks that the server is reachable
  2. Fetches the server's tasks and merges them with local ones
  3. Replays queued changes in the order they were made
  4. Keeps any change the server did not accept for the next round`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.URL == "" {
			return fmt.Errorf("no server configured: set server.url or pass --server")
		}

		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a.manager.SetOnline(probeOnce(ctx))

		if !jsonOutput {
			fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.Server.URL)
		}
		result := a.manager.SyncWithServer(ctx)

		if jsonOutput {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			printSyncResult(result)
		}

		if !result.Success {
			return errors.New(result.Message)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status and queued changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Server.URL != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.manager.SetOnline(probeOnce(ctx))
			cancel()
		}

		info := a.manager.SyncInfo()
		pending := a.manager.PendingActions()

		if jsonOutput {
			return printJSON(struct {
				offline.SyncInfo
				Pending []offline.PendingAction `json:"pending"`
			}{info, pending})
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
		if cfg.Server.URL == "" {
			fmt.Printf("Server:     %s\n", ui.RenderMuted("not configured"))
		} else if info.IsOnline {
			fmt.Printf("Server:     %s (%s)\n", cfg.Server.URL, ui.RenderPass("online"))
		} else {
			fmt.Printf("Server:     %s (%s)\n", cfg.Server.URL, ui.RenderWarn("offline"))
		}
		if u, ok := a.store.LoadUser(); ok {
			fmt.Printf("User:       %s\n", u.ID)
		}
		if info.LastSync != nil {
			fmt.Printf("Last sync:  %s (%s)\n", info.LastSync.Local().Format("2006-01-02 15:04:05"), ui.FormatAgo(*info.LastSync, time.Now()))
		} else {
			fmt.Printf("Last sync:  %s\n", ui.RenderMuted("never"))
		}
		fmt.Printf("Tasks:      %d\n", info.LocalTaskCount)
		fmt.Printf("Pending:    %d\n", info.PendingCount)

		if len(pending) > 0 {
			fmt.Printf("\n%s\n", ui.RenderHeading("Queued changes"))
			for _, p := range pending {
				line := fmt.Sprintf("  #%-4d %-12s %s", p.Seq, p.Type, ui.RenderID(p.TaskID()))
				if p.Attempts > 0 {
					line += ui.RenderWarn(fmt.Sprintf("  (%d failed attempts: %s)", p.Attempts, p.LastError))
				}
				fmt.Println(line)
			}
		}
		fmt.Println()
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "data",
	Short:   "Discard local tasks and queued changes",
	Long: `Remove the local task collection, every queued change and the last-sync
time. Queued changes that were never synced are lost. The signed-in user is
kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		yes, _ := cmd.Flags().GetBool("yes")
		pending := a.manager.PendingCount()
		if !yes {
			if !isTerminal() {
				return fmt.Errorf("refusing to clear without --yes")
			}
			confirm := false
			prompt := huh.NewConfirm().
				Title(fmt.Sprintf("Discard %d tasks and %d unsynced changes?", len(a.manager.Tasks()), pending)).
				Value(&confirm)
			if err := prompt.Run(); err != nil {
				return err
			}
			if !confirm {
				fmt.Println("Cancelled")
				return nil
			}
		}

		a.manager.ClearOfflineData()
		fmt.Printf("%s Cleared offline data\n", ui.RenderPass("✓"))
		return nil
	},
}

// probeOnce reports whether the server answers its health endpoint.
func probeOnce(ctx context.Context) bool {
	probe, err := connectivity.NewProbeSource(connectivity.ProbeConfig{
		URL:     cfg.ProbeURL(),
		Timeout: cfg.Server.Timeout,
		Logger:  cliLogger(),
	})
	if err != nil {
		return false
	}
	return probe.Check(ctx)
}

func printSyncResult(r offline.SyncResult) {
	switch {
	case r.Success && r.Failed == 0:
		fmt.Printf("%s %s in %v\n", ui.RenderPass("✓"), r.Message, r.Duration.Round(time.Millisecond))
	case r.Success:
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), r.Message)
	case offline.IsRoutine(r.Err):
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), r.Message)
		return
	default:
		fmt.Printf("%s %s\n", ui.RenderFail("✗"), r.Message)
		return
	}

	fmt.Printf("   Tasks: %d\n", r.SyncedCount)
	fmt.Printf("   Replayed: %d\n", r.Replayed)
	if r.Dropped > 0 {
		fmt.Printf("   Dropped: %d (unreadable)\n", r.Dropped)
	}
	fmt.Printf("   Pending: %d\n", r.PendingCount)
}

func init() {
	clearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
}
