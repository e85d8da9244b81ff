package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDue accepts an absolute date ("2026-04-02", "2026-04-02 14:00") or a
// phrase such as "tomorrow 9am" or "next friday", relative to now.
func parseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("due date is empty")
	}

	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	r, err := dueParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized due date %q", s)
	}
	return r.Time, nil
}
