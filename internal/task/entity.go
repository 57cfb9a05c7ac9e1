package task

import (
	"strings"
	"time"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusInReview   Status = "in-review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

type Evidence struct {
	Type      string    `json:"type"`
	Ref       string    `json:"ref"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Deps        []string   `json:"deps"`
	Priority    Priority   `json:"priority"`
	Assignee    string     `json:"assignee,omitempty"`
	ChangeID    string     `json:"changeId,omitempty"`
	Evidence    []Evidence `json:"evidence"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ParseStatus maps an external tracker's status vocabulary onto the fixed
// enumeration. Unrecognized values map to open.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed", "done", "resolved":
		return StatusDone
	case "in-progress", "in_progress", "active", "working":
		return StatusInProgress
	case "in-review", "in_review", "review":
		return StatusInReview
	case "blocked":
		return StatusBlocked
	case "ready":
		return StatusReady
	default:
		return StatusOpen
	}
}

// ToTrackerStatus maps the fixed enumeration back to the vocabulary the
// external tracker accepts on writes.
func ToTrackerStatus(s Status) string {
	switch s {
	case StatusDone:
		return "closed"
	case StatusInProgress, StatusInReview:
		return "in_progress"
	case StatusBlocked:
		return "blocked"
	default:
		return "open"
	}
}

// ParsePriority normalizes a priority label. Unrecognized values map to P2.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P0", "0", "CRITICAL":
		return PriorityP0
	case "P1", "1", "HIGH":
		return PriorityP1
	case "P3", "3", "LOW":
		return PriorityP3
	default:
		return PriorityP2
	}
}

// Ready returns the open or ready tasks whose every dependency resolves
// to a done task. Dependency ids that do not resolve count as not done.
func Ready(tasks []*Task) []*Task {
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	var ready []*Task
	for _, t := range tasks {
		if t.Status != StatusOpen && t.Status != StatusReady {
			continue
		}
		ok := true
		for _, dep := range t.Deps {
			d, found := byID[dep]
			if !found || d.Status != StatusDone {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}
