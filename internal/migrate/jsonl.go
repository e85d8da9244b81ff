// Package migrate moves task collections in and out of the offline store.
//
// Import reads JSON Lines and queues each record as an offline creation, so
// imported work reaches the server through the normal sync path. Export
// writes the local collection as JSON Lines or YAML.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/fieldtask/internal/offline"
	"github.com/fieldops/fieldtask/internal/task"
)

// Export formats accepted by Export.
const (
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
)

// ImportOptions contains configuration for an import
type ImportOptions struct {
	DryRun bool // Parse and validate without queueing anything
}

// ImportResult contains statistics about an import
type ImportResult struct {
	TasksImported int
	Skipped       int
	Errors        []string
}

// ReadJSONL parses one task per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]task.Task, error) {
	var tasks []task.Task
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var t task.Task
		if err := decoder.Decode(&t); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum+1, err)
		}
		lineNum++
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// ReadJSONLFile reads a JSONL file from disk.
func ReadJSONLFile(path string) ([]task.Task, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	return ReadJSONL(file)
}

// Import queues every task from r as an offline creation. Records whose id
// already names a local task are skipped; invalid records are reported in
// the result and do not stop the import.
func Import(m *offline.Manager, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	tasks, err := ReadJSONL(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	result := &ImportResult{}
	for i, t := range tasks {
		if t.ID != "" {
			if _, exists := m.Task(t.ID); exists {
				result.Skipped++
				continue
			}
		}

		if opts.DryRun {
			if strings.TrimSpace(t.Title) == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("record %d: title is required", i+1))
				continue
			}
			result.TasksImported++
			continue
		}

		if _, err := m.AddTaskOffline(t); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i+1, err))
			continue
		}
		result.TasksImported++
	}

	return result, nil
}

// WriteJSONL writes one task per line.
func WriteJSONL(w io.Writer, tasks []task.Task) error {
	encoder := json.NewEncoder(w)
	for _, t := range tasks {
		if err := encoder.Encode(t); err != nil {
			return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
		}
	}
	return nil
}

// WriteYAML writes the tasks as a single YAML sequence.
func WriteYAML(w io.Writer, tasks []task.Task) error {
	if tasks == nil {
		tasks = []task.Task{}
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(tasks); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// Export writes tasks in the named format.
func Export(w io.Writer, tasks []task.Task, format string) error {
	switch strings.ToLower(format) {
	case FormatJSONL, "":
		return WriteJSONL(w, tasks)
	case FormatYAML, "yml":
		return WriteYAML(w, tasks)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
