package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldops/fieldtask/internal/migrate"
	"github.com/fieldops/fieldtask/internal/offline"
	"github.com/fieldops/fieldtask/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "data",
	Short:   "Queue tasks from a JSON Lines file",
	Long: `Read one task per line and create each offline. Imported tasks get
temporary ids and are uploaded on the next sync. Lines whose id matches a
local task are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		// #nosec G304 - controlled path from CLI
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		result, err := migrate.Import(a.manager, f, migrate.ImportOptions{DryRun: dryRun})
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(result)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d tasks\n", ui.RenderPass("✓"), verb, result.TasksImported)
		if result.Skipped > 0 {
			fmt.Printf("   Skipped: %d (already present)\n", result.Skipped)
		}
		for _, e := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderFail("✗"), e)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Write local tasks as JSONL or YAML",
	Long: `Write the local task collection, including tasks not yet synced.

Examples:
  ft export > tasks.jsonl
  ft export --format yaml -o tasks.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		w := os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		return migrate.Export(w, a.manager.Tasks(), format)
	},
}

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "sync",
	Short:   "Cache the identity used for notes and server calls",
	Long: `Store the signed-in user. The token is sent as a bearer credential on every
server call; the id authors notes added offline.

Example:
  ft login --user tech-7 --name "Dana Ortiz" --token "$FT_TOKEN"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		u := offline.User{}
		u.ID, _ = cmd.Flags().GetString("user")
		u.Name, _ = cmd.Flags().GetString("name")
		u.Email, _ = cmd.Flags().GetString("email")
		u.Role, _ = cmd.Flags().GetString("role")
		u.Token, _ = cmd.Flags().GetString("token")
		if u.ID == "" {
			return fmt.Errorf("--user is required")
		}

		if err := a.store.SaveUser(u); err != nil {
			return err
		}
		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), u.ID)
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Validate without queueing")

	exportCmd.Flags().StringP("format", "f", migrate.FormatJSONL, "Output format (jsonl, yaml)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	loginCmd.Flags().String("user", "", "User id")
	loginCmd.Flags().String("name", "", "Display name")
	loginCmd.Flags().String("email", "", "Email")
	loginCmd.Flags().String("role", "", "Role")
	loginCmd.Flags().String("token", "", "Bearer token for the server")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(loginCmd)
}
