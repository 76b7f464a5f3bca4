// Package tasks owns the task records and their dependency graph: lane
// transitions with history, acyclic dependsOn/blocks edges, and the
// completion-driven unblock cascade.
package tasks

import (
	"strings"
	"time"
)

// Lane is the workflow stage of a task.
type Lane string

const (
	LaneProposed    Lane = "proposed"
	LaneQueued      Lane = "queued"
	LaneDevelopment Lane = "development"
	LaneReview      Lane = "review"
	LaneBlocked     Lane = "blocked"
	LaneDone        Lane = "done"
)

// NormalizeLane maps free-form input to a known lane. Unrecognized values
// normalize to queued.
func NormalizeLane(s string) Lane {
	switch Lane(strings.ToLower(strings.TrimSpace(s))) {
	case LaneProposed, LaneQueued, LaneDevelopment, LaneReview, LaneBlocked, LaneDone:
		return Lane(strings.ToLower(strings.TrimSpace(s)))
	default:
		return LaneQueued
	}
}

// Priority buckets, P0 highest.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// NormalizePriority maps free-form input to a known priority. Unrecognized
// values normalize to P2.
func NormalizePriority(s string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return Priority(strings.ToUpper(strings.TrimSpace(s)))
	default:
		return PriorityP2
	}
}

// StatusChange is one entry in a task's append-only lane history.
// The first entry records creation and carries no From.
type StatusChange struct {
	At   time.Time `json:"at"`
	From Lane      `json:"from,omitempty"`
	To   Lane      `json:"to"`
	Note string    `json:"note,omitempty"`
	By   string    `json:"by,omitempty"`
}

// TimeEntry is one logged work interval.
type TimeEntry struct {
	AgentID string    `json:"agentId"`
	Hours   float64   `json:"hours"`
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
}

// Comment is one entry in a task's append-only comment log.
type Comment struct {
	At   time.Time `json:"at"`
	By   string    `json:"by"`
	Text string    `json:"text"`
}

// Task is a unit of work.
//
// DependsOn and Blocks are inverse views of the same edge set; the store
// keeps them consistent on every mutation that links or unlinks tasks.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`

	Lane     Lane     `json:"lane"`
	Priority Priority `json:"priority"`
	Tags     []string `json:"tags,omitempty"`

	EstimatedHours float64 `json:"estimatedHours,omitempty"`
	ActualHours    float64 `json:"actualHours,omitempty"`

	DependsOn []string `json:"dependsOn,omitempty"`
	Blocks    []string `json:"blocks,omitempty"`

	StatusHistory []StatusChange `json:"statusHistory"`
	TimeEntries   []TimeEntry    `json:"timeEntries,omitempty"`
	Comments      []Comment      `json:"comments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// clone returns a deep copy safe to hand out across the store boundary.
func (t *Task) clone() Task {
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	cp.Blocks = append([]string(nil), t.Blocks...)
	cp.StatusHistory = append([]StatusChange(nil), t.StatusHistory...)
	cp.TimeEntries = append([]TimeEntry(nil), t.TimeEntries...)
	cp.Comments = append([]Comment(nil), t.Comments...)
	return cp
}

// CreateInput carries the producer-supplied fields for a new task.
type CreateInput struct {
	Title          string
	Description    string
	ProjectID      string
	AssignedTo     string
	Lane           string // normalized; unknown -> queued
	Priority       string // normalized; unknown -> P2
	Tags           []string
	EstimatedHours float64
	DependsOn      []string
}

// Patch holds optional field updates; nil means "leave unchanged".
type Patch struct {
	Title          *string
	Description    *string
	ProjectID      *string
	AssignedTo     *string
	Lane           *string
	Priority       *string
	Tags           *[]string
	EstimatedHours *float64
	Note           string // history note when the lane changes
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Lane       Lane
	Priority   Priority
	AssignedTo string
	ProjectID  string
	Tag        string
}

func (f Filter) match(t *Task) bool {
	if f.Lane != "" && t.Lane != f.Lane {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
