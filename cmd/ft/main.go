// Command ft is the fieldtask CLI: an offline-first client for the
// maintenance task server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldops/fieldtask/internal/config"
)

var (
	cfgFile    string
	serverURL  string
	jsonOutput bool
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ft",
	Short: "Offline-first maintenance task tracker",
	Long: `ft records maintenance tasks locally and synchronizes them with the task
server whenever it is reachable.

Every change is applied to the local store first and queued. Queued changes
are replayed in order on the next sync, either by 'ft sync' or by the
background daemon ('ft daemon'), which syncs automatically on reconnect.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if serverURL != "" {
			loaded.Server.URL = serverURL
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.config/fieldtask/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Task server URL (overrides server.url)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log sync activity to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
