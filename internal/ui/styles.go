// Package ui renders CLI output.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fieldops/fieldtask/internal/task"
)

// Color palette
var (
	colorAccent  = lipgloss.Color("#7AA2F7")
	colorPass    = lipgloss.Color("#2ECC71")
	colorWarn    = lipgloss.Color("#F39C12")
	colorFail    = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#666666")
	colorSubtle  = lipgloss.Color("#414868")
	colorHeading = lipgloss.Color("#C0CAF5")
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	passStyle    = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle    = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorHeading)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s as a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s as an error.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders s de-emphasized.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderHeading renders a section heading.
func RenderHeading(s string) string { return headingStyle.Render(s) }

// RenderPriority colors a priority by urgency.
func RenderPriority(p string) string {
	switch strings.ToLower(p) {
	case "critical":
		return failStyle.Bold(true).Render(p)
	case "high":
		return warnStyle.Render(p)
	case "low":
		return mutedStyle.Render(p)
	default:
		return p
	}
}

// RenderID marks tasks that have not reached the server yet.
func RenderID(id string) string {
	if task.IsLocalID(id) {
		return warnStyle.Render(shortID(id))
	}
	return accentStyle.Render(id)
}

// shortID trims a temporary id to its prefix plus eight characters, which
// is enough to tell local tasks apart on screen.
func shortID(id string) string {
	const keep = len(task.LocalIDPrefix) + 8
	if len(id) <= keep {
		return id
	}
	return id[:keep]
}

// TaskTable renders tasks as a bordered table.
func TaskTable(tasks []task.Task) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorSubtle)).
		Headers("ID", "TITLE", "STATUS", "PRIORITY", "LOCATION", "DUE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Inherit(headingStyle)
			}
			return cellStyle
		})

	for _, tk := range tasks {
		t.Row(
			RenderID(tk.ID),
			tk.Title,
			tk.Status,
			RenderPriority(tk.Priority),
			tk.Location,
			FormatDue(tk.DueDate),
		)
	}
	return t.Render()
}

// FormatDue renders an optional due date.
func FormatDue(due *time.Time) string {
	if due == nil {
		return "-"
	}
	return due.Local().Format("2006-01-02 15:04")
}

// FormatAgo renders how long ago t was, coarsely.
func FormatAgo(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
