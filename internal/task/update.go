package task

import "time"

// Update is a partial modification of a Task. Nil fields are left unchanged.
// It is also the payload the server receives for an update.
type Update struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Type              *string    `json:"type,omitempty"`
	Priority          *string    `json:"priority,omitempty"`
	Status            *string    `json:"status,omitempty"`
	Location          *string    `json:"location,omitempty"`
	EstimatedDuration *int       `json:"estimatedDuration,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	AssignedTo        *string    `json:"assignedTo,omitempty"`
	RequiredTools     []string   `json:"requiredTools,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Type == nil &&
		u.Priority == nil && u.Status == nil && u.Location == nil &&
		u.EstimatedDuration == nil && u.DueDate == nil && u.AssignedTo == nil &&
		u.RequiredTools == nil
}

// Apply copies every set field of u onto t.
func (u Update) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Type != nil {
		t.Type = *u.Type
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Location != nil {
		t.Location = *u.Location
	}
	if u.EstimatedDuration != nil {
		t.EstimatedDuration = *u.EstimatedDuration
	}
	if u.DueDate != nil {
		d := *u.DueDate
		t.DueDate = &d
	}
	if u.AssignedTo != nil {
		a := *u.AssignedTo
		t.AssignedTo = &a
	}
	if u.RequiredTools != nil {
		t.RequiredTools = append([]string{}, u.RequiredTools...)
	}
}
