package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fieldops/fieldtask/internal/task"
	"github.com/fieldops/fieldtask/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Create, edit and list tasks",
	Long: `Manage tasks in the local store.

All changes are applied locally and queued for the next sync. Tasks created
offline carry a temporary id (temp_...) until the server assigns one.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a task",
	Long: `Create a task offline and queue its upload.

With no title on a terminal, an interactive form is shown.

Examples:
  ft task add "Replace intake filter" --location "Pump house" --priority high
  ft task add "Inspect boiler" --due "next monday 8am" --tool wrench --tool gauge
  ft task add`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := taskFromFlags(cmd, args)
		if err != nil {
			return err
		}
		if t.Title == "" {
			if !isTerminal() {
				return fmt.Errorf("title is required")
			}
			if err := runTaskForm(&t); err != nil {
				return err
			}
		}

		id, err := a.manager.AddTaskOffline(t)
		if err != nil {
			return err
		}

		if jsonOutput {
			created, _ := a.manager.Task(id)
			return printJSON(created)
		}
		fmt.Printf("%s Created %s %s\n", ui.RenderPass("✓"), ui.RenderID(id), t.Title)
		fmt.Printf("   %d actions pending sync\n", a.manager.PendingCount())
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a task",
	Long: `Apply changes to a task and queue them for the server.

Only the flags given are changed.

Examples:
  ft task update 42 --status completed
  ft task update temp_3f2a --priority critical --due tomorrow`,
	Args: cobra.ExactArgs(1),
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
		upd, err := updateFromFlags(cmd)
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			return fmt.Errorf("nothing to update: pass at least one field flag")
		}

		if err := a.manager.UpdateTaskOffline(id, upd); err != nil {
			return err
		}

		if jsonOutput {
			updated, _ := a.manager.Task(id)
			return printJSON(updated)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderID(id))
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Long: `Delete a task locally and queue the deletion.

Deleting a task that was never synced simply discards it and its queued
changes; nothing is sent to the server.`,
	Args: cobra.ExactArgs(1),
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
		if err := a.manager.DeleteTaskOffline(id); err != nil {
			return err
		}

		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.RenderID(id))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List local tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		status, _ := cmd.Flags().GetString("status")
		tasks := filterTasks(a.manager.Tasks(), status)

		if jsonOutput {
			return printJSON(tasks)
		}
		if len(tasks) == 0 {
			fmt.Println(ui.RenderMuted("No tasks"))
			return nil
		}
		fmt.Println(ui.TaskTable(tasks))
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task with its notes",
	Args:  cobra.ExactArgs(1),
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
		t, _ := a.manager.Task(id)

		if jsonOutput {
			return printJSON(t)
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderID(t.ID), ui.RenderHeading(t.Title))
		if t.Description != "" {
			fmt.Printf("%s\n\n", t.Description)
		}
		fmt.Printf("Status:   %s\n", t.Status)
		fmt.Printf("Priority: %s\n", ui.RenderPriority(t.Priority))
		fmt.Printf("Type:     %s\n", t.Type)
		if t.Location != "" {
			fmt.Printf("Location: %s\n", t.Location)
		}
		fmt.Printf("Due:      %s\n", ui.FormatDue(t.DueDate))
		if t.EstimatedDuration > 0 {
			fmt.Printf("Estimate: %d min\n", t.EstimatedDuration)
		}
		if t.AssignedTo != nil {
			fmt.Printf("Assigned: %s\n", *t.AssignedTo)
		}
		if len(t.RequiredTools) > 0 {
			fmt.Printf("Tools:    %s\n", strings.Join(t.RequiredTools, ", "))
		}
		if len(t.Notes) > 0 {
			fmt.Printf("\n%s\n", ui.RenderHeading("Notes"))
			now := time.Now()
			for _, n := range t.Notes {
				fmt.Printf("  %s %s\n", ui.RenderMuted(ui.FormatAgo(n.CreatedAt, now)), n.Content)
			}
		}
		fmt.Println()
		return nil
	},
}

func filterTasks(tasks []task.Task, status string) []task.Task {
	if status == "" {
		return tasks
	}
	out := []task.Task{}
	for _, t := range tasks {
		if strings.EqualFold(t.Status, status) {
			out = append(out, t)
		}
	}
	return out
}

// taskFromFlags builds a new task from the add command's flags.
func taskFromFlags(cmd *cobra.Command, args []string) (task.Task, error) {
	var t task.Task
	if len(args) > 0 {
		t.Title = strings.TrimSpace(args[0])
	}
	t.Description, _ = cmd.Flags().GetString("description")
	t.Type, _ = cmd.Flags().GetString("type")
	t.Priority, _ = cmd.Flags().GetString("priority")
	t.Location, _ = cmd.Flags().GetString("location")
	t.EstimatedDuration, _ = cmd.Flags().GetInt("duration")
	t.RequiredTools, _ = cmd.Flags().GetStringSlice("tool")

	if assignee, _ := cmd.Flags().GetString("assign"); assignee != "" {
		t.AssignedTo = &assignee
	}
	if due, _ := cmd.Flags().GetString("due"); due != "" {
		d, err := parseDue(due, time.Now())
		if err != nil {
			return task.Task{}, err
		}
		t.DueDate = &d
	}
	return t, nil
}

// updateFromFlags builds an update from the flags that were set.
func updateFromFlags(cmd *cobra.Command) (task.Update, error) {
	var u task.Update
	flags := cmd.Flags()

	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}

	u.Title = str("title")
	u.Description = str("description")
	u.Type = str("type")
	u.Priority = str("priority")
	u.Status = str("status")
	u.Location = str("location")
	u.AssignedTo = str("assign")

	if flags.Changed("duration") {
		d, _ := flags.GetInt("duration")
		u.EstimatedDuration = &d
	}
	if flags.Changed("tool") {
		tools, _ := flags.GetStringSlice("tool")
		u.RequiredTools = tools
	}
	if flags.Changed("due") {
		raw, _ := flags.GetString("due")
		d, err := parseDue(raw, time.Now())
		if err != nil {
			return task.Update{}, err
		}
		u.DueDate = &d
	}
	return u, nil
}

// runTaskForm fills t interactively.
func runTaskForm(t *task.Task) error {
	var due string
	if t.Priority == "" {
		t.Priority = "medium"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&t.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&t.Description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(huh.NewOptions("low", "medium", "high", "critical")...).
				Value(&t.Priority),
			huh.NewInput().
				Title("Location").
				Value(&t.Location),
			huh.NewInput().
				Title("Due").
				Placeholder("e.g. tomorrow 9am, 2026-05-01").
				Value(&due).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := parseDue(s, time.Now())
					return err
				}),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	if strings.TrimSpace(due) != "" {
		d, err := parseDue(due, time.Now())
		if err != nil {
			return err
		}
		t.DueDate = &d
	}
	return nil
}

func addTaskFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().StringP("type", "t", "", "Task type (inspection, repair, maintenance, ...)")
	cmd.Flags().StringP("priority", "p", "", "Priority (low, medium, high, critical)")
	cmd.Flags().StringP("location", "l", "", "Where the work takes place")
	cmd.Flags().Int("duration", 0, "Estimated duration in minutes")
	cmd.Flags().String("due", "", `Due date ("2026-05-01", "tomorrow 9am", ...)`)
	cmd.Flags().String("assign", "", "Assignee user id")
	cmd.Flags().StringSlice("tool", nil, "Required tool (repeatable)")
}

func init() {
	addTaskFieldFlags(taskAddCmd)

	addTaskFieldFlags(taskUpdateCmd)
	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().StringP("status", "s", "", "Status (pending, in_progress, completed, ...)")

	taskListCmd.Flags().StringP("status", "s", "", "Only show tasks with this status")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
