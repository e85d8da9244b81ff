package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldops/fieldtask/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "tasks",
	Short:   "Annotate tasks",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <task-id> <text...>",
	Short: "Add a note to a task",
	Long: `Attach a note to a task and queue it for the server.

Example:
  ft note add 42 "Seal was cracked, replaced with spare from van"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := resolveTaskID(a.manager, args[0])
		if err != nil {
			return err
		}

		note, err := a.manager.AddNoteOffline(id, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(note)
		}
		fmt.Printf("%s Added note to %s\n", ui.RenderPass("✓"), ui.RenderID(id))
		return nil
	},
}

func init() {
	noteCmd.AddCommand(noteAddCmd)
	rootCmd.AddCommand(noteCmd)
}
