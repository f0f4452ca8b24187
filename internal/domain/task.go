package domain

import (
	"strings"
	"time"
)

// Detached is the position of a task that is not part of any list ordering.
const Detached = -1

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Task carries the fields this core reads and mutates. StatusID references a
// Status row; LegacyStatus is only set for rows whose free-text status never
// resolved to one.
type Task struct {
	ID           string
	BoardID      string
	ListID       string
	StatusID     string
	LegacyStatus string
	Position     int
	Priority     Priority
	Assignees    []string
	CreatedBy    string
	Archived     bool
	UpdatedAt    time.Time
}

func (t Task) HasAssignee() bool {
	return len(t.Assignees) > 0
}

func (t Task) IsAssigned(subject string) bool {
	for _, a := range t.Assignees {
		if a == subject {
			return true
		}
	}
	return false
}

// StatusName resolves the task's current status against w. ok is false for an
// untyped origin: a legacy text value, or a reference that no longer resolves.
func (t Task) StatusName(w Workflow) (name string, ok bool) {
	if t.StatusID != "" {
		if s, found := w.StatusByID(t.StatusID); found {
			return s.Name, true
		}
	}
	return strings.TrimSpace(t.LegacyStatus), false
}

// List is an ordered column of tasks within a board.
type List struct {
	ID      string
	BoardID string
	Name    string
}
